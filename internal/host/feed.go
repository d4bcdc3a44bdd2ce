package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"battlecalc/internal/logging"
)

// EventType is the frame type of a feed message.
type EventType int

const (
	EventTypeSubscribe   EventType = 5
	EventTypeUnsubscribe EventType = 6
	EventTypeEvent       EventType = 8
)

// BattleEvent is the feed topic carrying battle captures.
const BattleEvent = "OnBattleUpdate"

var ErrFeedClosed = errors.New("host: feed closed")

// BattleHandler is called once per battle change, in arrival order, from the
// feed's read loop. ended is true when the host dropped the battle.
type BattleHandler func(b *Battle, ended bool)

type eventEnvelope struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// Feed subscribes to the host's battle-change events over a websocket.
type Feed struct {
	conn        *websocket.Conn
	mu          sync.Mutex
	isConnected bool
	stopChan    chan struct{}
	done        chan struct{}
	handler     BattleHandler
	header      http.Header
	log         zerolog.Logger
}

// NewFeed creates a disconnected feed.
func NewFeed(log zerolog.Logger) *Feed {
	return &Feed{
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		log:      logging.Component(log, "feed"),
	}
}

// SetHeader sets extra headers sent with the websocket handshake.
func (f *Feed) SetHeader(h http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.header = h
}

// SetBattleHandler sets the callback for battle events.
func (f *Feed) SetBattleHandler(handler BattleHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

// Connect dials the feed and subscribes to battle events.
func (f *Feed) Connect(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isConnected {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, f.header)
	if err != nil {
		return fmt.Errorf("failed to connect to host feed: %w", err)
	}

	if err := conn.WriteJSON([]interface{}{EventTypeSubscribe, BattleEvent}); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to battle events: %w", err)
	}

	f.conn = conn
	f.isConnected = true
	f.done = make(chan struct{})
	f.log.Info().Str("url", url).Msg("connected")

	go f.listen(conn, f.stopChan, f.done)

	return nil
}

func (f *Feed) listen(conn *websocket.Conn, stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		f.mu.Lock()
		f.isConnected = false
		conn.Close()
		f.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
			default:
				f.log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		f.handleMessage(message)
	}
}

func (f *Feed) handleMessage(data []byte) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 3 {
		return
	}

	var eventType EventType
	if err := json.Unmarshal(raw[0], &eventType); err != nil || eventType != EventTypeEvent {
		return
	}

	var name string
	if err := json.Unmarshal(raw[1], &name); err != nil || name != BattleEvent {
		return
	}

	var env eventEnvelope
	if err := json.Unmarshal(raw[2], &env); err != nil {
		f.log.Debug().Err(err).Msg("bad envelope")
		return
	}

	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		return
	}

	switch env.EventType {
	case "Create", "Update":
		b, err := DecodeBattle(env.Data)
		if err != nil {
			f.log.Warn().Err(err).Msg("failed to parse battle")
			return
		}
		handler(b, b.Ended)
	case "Delete":
		var b Battle
		if err := json.Unmarshal(env.Data, &b); err != nil {
			f.log.Warn().Err(err).Msg("failed to parse deleted battle")
			return
		}
		if b.ID == "" {
			f.log.Warn().Msg("deleted battle has no id")
			return
		}
		handler(&b, true)
	}
}

// Done is closed when the read loop exits.
func (f *Feed) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Wait blocks until the feed closes or ctx is cancelled.
func (f *Feed) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		f.Disconnect()
		return ctx.Err()
	case <-f.Done():
		return ErrFeedClosed
	}
}

// Disconnect closes the connection.
func (f *Feed) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()

	close(f.stopChan)
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
		f.conn = nil
	}
	f.isConnected = false
	f.stopChan = make(chan struct{})
}

// IsConnected returns whether the feed is connected.
func (f *Feed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isConnected
}

// DecodeBattle parses one battle capture.
func DecodeBattle(data []byte) (*Battle, error) {
	var b Battle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode battle: %w", err)
	}
	if b.ID == "" {
		return nil, errors.New("battle capture has no id")
	}
	return &b, nil
}
