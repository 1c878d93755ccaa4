package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/akrotiri/helmsman/internal/engine"
)

// writeTimeout bounds one websocket write.
const writeTimeout = 5 * time.Second

// RegimeStream fans regime records out to websocket subscribers. A slow
// subscriber drops messages instead of blocking the publisher.
type RegimeStream struct {
	log zerolog.Logger

	mu          sync.Mutex
	subscribers map[chan engine.RegimeRecord]struct{}
	closed      bool
}

// NewRegimeStream creates an empty broadcast hub.
func NewRegimeStream(log zerolog.Logger) *RegimeStream {
	return &RegimeStream{
		log:         log.With().Str("component", "regime_stream").Logger(),
		subscribers: make(map[chan engine.RegimeRecord]struct{}),
	}
}

// Publish sends a regime record to every subscriber.
func (s *RegimeStream) Publish(rec engine.RegimeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- rec:
		default:
			// Subscriber is not keeping up; drop rather than block.
		}
	}
}

func (s *RegimeStream) subscribe() (chan engine.RegimeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	ch := make(chan engine.RegimeRecord, 16)
	s.subscribers[ch] = struct{}{}
	return ch, true
}

func (s *RegimeStream) unsubscribe(ch chan engine.RegimeRecord) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
}

// Close detaches all subscribers and rejects new ones.
func (s *RegimeStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, ch)
	}
}

// Handle upgrades the request to a websocket and streams regime records
// until the client disconnects or the hub closes.
func (s *RegimeStream) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch, ok := s.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "stream closed")
		return
	}
	defer s.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, open := <-ch:
			if !open {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, rec)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("Websocket write failed, dropping subscriber")
				return
			}
		}
	}
}
