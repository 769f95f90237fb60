// README: Websocket subscriber feeding a View, with refetch-on-connect reconciliation and backoff.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	applog "medtrans/internal/log"
)

// Fetcher loads the authoritative bookings for a view (e.g. GET /jobs).
type Fetcher func(ctx context.Context) ([]Snapshot, error)

type Subscriber struct {
	URL        string
	Header     http.Header
	View       *View
	Fetch      Fetcher
	OnEvent    func(Event)
	MinBackoff time.Duration
	MaxBackoff time.Duration

	dialer *websocket.Dialer
	log    zerolog.Logger
}

func NewSubscriber(url string, header http.Header, view *View, fetch Fetcher) *Subscriber {
	return &Subscriber{
		URL:        url,
		Header:     header,
		View:       view,
		Fetch:      fetch,
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
		dialer:     websocket.DefaultDialer,
		log:        applog.WithComponent("realtime.subscriber"),
	}
}

// Run keeps a session open until ctx is done, reconnecting with exponential backoff.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := s.MinBackoff
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = s.MinBackoff
		}
		s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("realtime session ended")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.MaxBackoff {
			backoff = s.MaxBackoff
		}
	}
}

func (s *Subscriber) session(ctx context.Context) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.URL, s.Header)
	if err != nil {
		return false, err
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	// Refetch after subscribing so nothing published during the gap is lost.
	if s.Fetch != nil {
		snaps, err := s.Fetch(ctx)
		if err != nil {
			return true, err
		}
		s.View.Reset(snaps)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Debug().Err(err).Msg("skipping malformed message")
			continue
		}
		ev, err := Decode(env)
		if errors.Is(err, ErrUnknownEvent) {
			continue
		}
		if err != nil {
			return true, err
		}
		s.View.Apply(ev)
		if s.OnEvent != nil {
			s.OnEvent(ev)
		}
	}
}
