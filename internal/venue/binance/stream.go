package binance

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kasyap1234/fundingfee/internal/money"
)

// MarkPriceEvent is one symbol's funding-rate/mark-price tick from the
// combined mark-price stream.
type MarkPriceEvent struct {
	Symbol      string
	MarkPrice   money.Decimal
	FundingRate money.Decimal
	Timestamp   time.Time
}

// Stream owns one WebSocket connection to the venue's market-data feed. A
// single goroutine reads from the connection and publishes decoded events
// to a bounded channel; the one write this type makes (the close frame in
// Close) goes through writeMu. The stream sends no pings of its own.
type Stream struct {
	url    string
	log    *slog.Logger
	events chan MarkPriceEvent

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	writeMu   sync.Mutex
	stop      chan struct{}
	closeOnce sync.Once
}

// NewStream builds a stream against the combined mark-price channel for the
// given symbols. Events arrive on Events() until Close is called.
func NewStream(baseURL string, symbols []string, log *slog.Logger) *Stream {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = fmt.Sprintf("%s@markPrice", lower(s))
	}
	q := url.Values{"streams": {joinStreams(streams)}}
	return &Stream{
		url:    baseURL + "/stream?" + q.Encode(),
		log:    log,
		events: make(chan MarkPriceEvent, 256),
		stop:   make(chan struct{}),
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func joinStreams(streams []string) string {
	out := ""
	for i, s := range streams {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}

// Events returns the channel events are published to.
func (s *Stream) Events() <-chan MarkPriceEvent { return s.events }

// Run connects and reads until Close is called, reconnecting with backoff on
// any read error. Intended to be launched in its own goroutine.
func (s *Stream) Run() {
	backoff := time.Second
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			s.log.Warn("websocket dial failed", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff = minDuration(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second
		s.mu.Lock()
		s.conn = conn
		s.connected = true
		s.mu.Unlock()

		s.readLoop(conn)

		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Warn("websocket read error", "error", err)
			return
		}
		ev, err := decodeMarkPrice(data)
		if err != nil {
			continue
		}
		select {
		case s.events <- ev:
		default:
			s.log.Warn("mark price event dropped, channel full")
		}
	}
}

func decodeMarkPrice(data []byte) (MarkPriceEvent, error) {
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return MarkPriceEvent{}, err
	}
	var payload struct {
		Symbol      string `json:"s"`
		MarkPrice   string `json:"p"`
		FundingRate string `json:"r"`
		EventTime   int64  `json:"E"`
	}
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return MarkPriceEvent{}, err
	}
	mark, err := money.FromString(payload.MarkPrice)
	if err != nil {
		return MarkPriceEvent{}, err
	}
	rate, _ := money.FromString(payload.FundingRate)
	return MarkPriceEvent{
		Symbol:      payload.Symbol,
		MarkPrice:   mark,
		FundingRate: rate,
		Timestamp:   time.UnixMilli(payload.EventTime),
	}, nil
}

// Close stops the read loop and closes the underlying connection.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}
		s.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		conn.Close()
	})
}
