// Package bus publishes daemon events (state changes, plans, results) to an
// external websocket hub so UIs can follow along.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	ws "github.com/gorilla/websocket"
)

type Event struct {
	Kind    string    `json:"kind"`
	From    string    `json:"from"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

type Config struct {
	URL string
	// From names this daemon on the hub.
	From string
	// Reconnect is the delay between dial attempts.
	Reconnect time.Duration
	// WriteTimeout bounds one message write.
	WriteTimeout time.Duration
	// Buffer is how many events may queue while the hub is slow or away.
	Buffer int
	Logger *slog.Logger
}

// Publisher never blocks its callers: events that do not fit in the buffer
// are dropped.
type Publisher struct {
	cfg    Config
	events chan Event
	log    *slog.Logger
}

func NewPublisher(cfg Config) *Publisher {
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = 3 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.From == "" {
		cfg.From = "voxgit"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		cfg:    cfg,
		events: make(chan Event, cfg.Buffer),
		log:    log.With("component", "bus"),
	}
}

// Publish queues an event and reports whether it was accepted.
func (p *Publisher) Publish(kind string, payload any) bool {
	ev := Event{Kind: kind, From: p.cfg.From, At: time.Now(), Payload: payload}
	select {
	case p.events <- ev:
		return true
	default:
		p.log.Debug("event dropped", "kind", kind)
		return false
	}
}

// Run connects to the hub and forwards events until ctx is done, redialing
// whenever the connection breaks.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		conn, err := p.dial(ctx)
		if err != nil {
			return nil
		}
		p.log.Info("connected to hub", "url", p.cfg.URL)

		err = p.forward(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		if IsClosed(err) {
			p.log.Info("hub closed the connection", "err", err)
		} else {
			p.log.Warn("hub connection lost", "err", err)
		}
	}
}

func (p *Publisher) dial(ctx context.Context) (*ws.Conn, error) {
	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, p.cfg.URL, nil)
		if err == nil {
			return conn, nil
		}
		p.log.Debug("hub dial failed", "url", p.cfg.URL, "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.cfg.Reconnect):
		}
	}
}

func (p *Publisher) forward(ctx context.Context, conn *ws.Conn) error {
	// Reads notice a closed connection; the hub is not expected to talk.
	broken := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				broken <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return ctx.Err()
		case err := <-broken:
			return err
		case ev := <-p.events:
			data, err := json.Marshal(ev)
			if err != nil {
				p.log.Warn("event not encodable", "kind", ev.Kind, "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				return err
			}
		}
	}
}

// IsClosed reports whether err is an orderly or abnormal websocket close.
func IsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
