package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
	"github.com/gh-ankitgupta/tiktok-live-tracking/libs/routine"
)

const (
	frameConnected    = "connected"
	frameError        = "error"
	frameGift         = "gift"
	frameStreamEnd    = "stream_end"
	frameDisconnected = "disconnected"

	defaultProbeTimeout = 5 * time.Second
	closeWriteTimeout   = time.Second
)

// frame is the envelope of every message the bridge sends.
type frame struct {
	Type     string          `json:"type"`
	RoomID   any             `json:"room_id,omitempty"`
	Category string          `json:"category,omitempty"`
	Message  string          `json:"message,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func decodeFrame(data []byte) (frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f frame
	if err := dec.Decode(&f); err != nil {
		return frame{}, err
	}
	return f, nil
}

func roomIDString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// BridgeClient is an Adapter backed by a websocket live-event bridge, one
// socket per streamer.
type BridgeClient struct {
	url       string
	sessionID string
	dialer    *websocket.Dialer
	manager   *routine.Manager
	logger    zerolog.Logger
}

// NewBridgeClient returns a client whose read pumps are bound to ctx.
func NewBridgeClient(ctx context.Context, bridgeURL, sessionID string, logger zerolog.Logger) *BridgeClient {
	return &BridgeClient{
		url:       bridgeURL,
		sessionID: sessionID,
		dialer:    websocket.DefaultDialer,
		manager:   routine.NewManager(ctx),
		logger:    logger.With().Str("component", "live_bridge").Logger(),
	}
}

// Connect dials the bridge for streamer and waits for its handshake frame.
func (c *BridgeClient) Connect(ctx context.Context, streamer string) (Handle, error) {
	target, err := c.streamURL(streamer)
	if err != nil {
		return nil, &domain.ConnectError{Streamer: streamer, Category: domain.FailureOther, Err: err}
	}

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, connectError(ctx, streamer, fmt.Errorf("dial bridge: %w", err))
	}

	deadline := time.Now().Add(defaultProbeTimeout)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, connectError(ctx, streamer, fmt.Errorf("read handshake: %w", err))
	}
	_ = conn.SetReadDeadline(time.Time{})

	hello, err := decodeFrame(data)
	if err != nil {
		conn.Close()
		return nil, &domain.ConnectError{Streamer: streamer, Category: domain.FailureOther, Err: fmt.Errorf("decode handshake: %w", err)}
	}

	switch hello.Type {
	case frameConnected:
		roomID := roomIDString(hello.RoomID)
		if roomID == "" {
			conn.Close()
			return nil, &domain.ConnectError{Streamer: streamer, Category: domain.FailureOther, Err: errors.New("handshake without room id")}
		}
		c.logger.Info().Str("streamer", streamer).Str("room_id", roomID).Msg("connected to live room")
		return &bridgeHandle{
			streamer:  streamer,
			roomID:    roomID,
			conn:      conn,
			manager:   c.manager,
			logger:    c.logger.With().Str("streamer", streamer).Logger(),
			connected: true,
		}, nil
	case frameError:
		conn.Close()
		return nil, &domain.ConnectError{
			Streamer: streamer,
			Category: domain.ParseFailureCategory(hello.Category),
			Err:      errors.New(hello.Message),
		}
	default:
		conn.Close()
		return nil, &domain.ConnectError{Streamer: streamer, Category: domain.FailureOther, Err: fmt.Errorf("unexpected handshake frame %q", hello.Type)}
	}
}

// Close stops every read pump and waits for them.
func (c *BridgeClient) Close() error {
	return c.manager.ShutdownAll()
}

func (c *BridgeClient) streamURL(streamer string) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parse bridge url: %w", err)
	}
	q := u.Query()
	q.Set("unique_id", streamer)
	if c.sessionID != "" {
		q.Set("session_id", c.sessionID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func connectError(ctx context.Context, streamer string, err error) error {
	category := domain.FailureOther
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		category = domain.FailureTimeout
	}
	return &domain.ConnectError{Streamer: streamer, Category: category, Err: err}
}

type bridgeHandle struct {
	streamer string
	roomID   string
	conn     *websocket.Conn
	manager  *routine.Manager
	logger   zerolog.Logger

	mu         sync.Mutex
	connected  bool
	subscribed bool
	closeOnce  sync.Once
	closeErr   error
}

// Subscribe starts the read pump. A handle accepts a single subscription.
func (h *bridgeHandle) Subscribe(handlers Handlers) error {
	if handlers.OnGift == nil || handlers.OnStreamEnd == nil {
		return errors.New("subscribe: gift and stream end handlers are required")
	}
	h.mu.Lock()
	if h.subscribed {
		h.mu.Unlock()
		return errors.New("subscribe: already subscribed")
	}
	h.subscribed = true
	h.mu.Unlock()

	err := h.manager.RunTask(&routine.Task{
		Key: h.streamer,
		Handler: func(ctx context.Context) error {
			return h.pump(ctx, handlers)
		},
		OnError: func(_ string, err error) {
			h.logger.Warn().Err(err).Msg("live read pump stopped")
		},
		OnDone: func(string) {
			h.markDisconnected()
			_ = h.close()
		},
	})
	if err != nil {
		return fmt.Errorf("start read pump for %s: %w", h.streamer, err)
	}
	return nil
}

func (h *bridgeHandle) pump(ctx context.Context, handlers Handlers) error {
	stop := context.AfterFunc(ctx, func() { _ = h.close() })
	defer stop()

	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read %s: %w", h.streamer, err)
		}
		h.dispatch(data, handlers)
	}
}

func (h *bridgeHandle) dispatch(data []byte, handlers Handlers) {
	f, err := decodeFrame(data)
	if err != nil {
		h.invalid(handlers, &domain.EventProcessingError{Streamer: h.streamer, Event: "frame", Err: err})
		return
	}
	switch f.Type {
	case frameGift:
		ev, err := NormalizeGift(h.streamer, f.Data)
		if err != nil {
			h.invalid(handlers, err)
			return
		}
		handlers.OnGift(ev)
	case frameStreamEnd:
		h.markDisconnected()
		handlers.OnStreamEnd()
	case frameDisconnected:
		h.markDisconnected()
	default:
		h.logger.Debug().Str("type", f.Type).Msg("ignoring bridge frame")
	}
}

func (h *bridgeHandle) invalid(handlers Handlers, err error) {
	if handlers.OnInvalid != nil {
		handlers.OnInvalid(err)
	}
}

// State reports the last known room state, probing the socket with a ping
// while it still looks connected.
func (h *bridgeHandle) State(ctx context.Context) (domain.ConnState, error) {
	h.mu.Lock()
	st := domain.ConnState{RoomID: h.roomID, Connected: h.connected}
	h.mu.Unlock()
	if !st.Connected {
		return st, nil
	}

	deadline := time.Now().Add(defaultProbeTimeout)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	if err := h.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		h.markDisconnected()
		return domain.ConnState{RoomID: h.roomID}, fmt.Errorf("probe %s: %w", h.streamer, err)
	}
	return st, nil
}

// Disconnect cancels the read pump without waiting for it and closes the socket.
func (h *bridgeHandle) Disconnect() error {
	h.markDisconnected()
	if err := h.manager.Stop(h.streamer); err != nil && !errors.Is(err, routine.ErrRoutineNotFound) {
		return err
	}
	return h.close()
}

func (h *bridgeHandle) markDisconnected() {
	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()
}

func (h *bridgeHandle) close() error {
	h.closeOnce.Do(func() {
		_ = h.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout),
		)
		h.closeErr = h.conn.Close()
	})
	return h.closeErr
}
