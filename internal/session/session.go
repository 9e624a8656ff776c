// Package session holds the per-streamer live session state machine, the gift
// aggregator it owns, and the registry of active sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
)

// State is the lifecycle position of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Live
	Ending
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Live:
		return "live"
	case Ending:
		return "ending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Trigger is an input to the transition function.
type Trigger int

const (
	TriggerConnect Trigger = iota
	TriggerConnected
	TriggerConnectFailed
	TriggerEnd
	TriggerClosed
)

// Next is the single transition function shared by event callbacks and polling.
// ok is false when the trigger does not apply to from; the state is then unchanged.
func Next(from State, t Trigger) (State, bool) {
	switch {
	case from == Disconnected && t == TriggerConnect:
		return Connecting, true
	case from == Connecting && t == TriggerConnected:
		return Live, true
	case from == Connecting && t == TriggerConnectFailed:
		return Disconnected, true
	case from == Live && t == TriggerEnd:
		return Ending, true
	case from == Ending && t == TriggerClosed:
		return Disconnected, true
	}
	return from, false
}

var ErrNotEnding = errors.New("session is not ending")

// Conn is the slice of a live connection handle the session owns.
type Conn interface {
	State(ctx context.Context) (domain.ConnState, error)
	Disconnect() error
}

// Session tracks one streamer's live broadcast.
type Session struct {
	Streamer string

	mu        sync.Mutex
	state     State
	conn      Conn
	startTime time.Time
	endTime   time.Time
	endReason domain.EndReason
	agg       *Aggregator
}

func New(streamer string) *Session {
	return &Session{Streamer: streamer, state: Disconnected}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Conn returns the owned connection handle, or nil once released.
func (s *Session) Conn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) fire(t Trigger) bool {
	next, ok := Next(s.state, t)
	if ok {
		s.state = next
	}
	return ok
}

// BeginConnect moves a fresh session into Connecting.
func (s *Session) BeginConnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fire(TriggerConnect)
}

// Connected attaches conn and starts the live session at at.
func (s *Session) Connected(conn Conn, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fire(TriggerConnected) {
		return false
	}
	s.conn = conn
	s.startTime = at
	s.agg = NewAggregator()
	return true
}

// ConnectFailed returns a Connecting session to Disconnected.
func (s *Session) ConnectFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fire(TriggerConnectFailed)
}

// ApplyGift forwards ev to the aggregator while the session is live.
// accepted is false outside Live; counted is false for mid-streak updates.
func (s *Session) ApplyGift(ev domain.GiftEvent) (accepted, counted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Live {
		return false, false
	}
	return true, s.agg.Apply(ev)
}

// End moves a live session into Ending. Only the first end trigger wins;
// later ones, from any source, are no-ops.
func (s *Session) End(reason domain.EndReason, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fire(TriggerEnd) {
		return false
	}
	s.endTime = at
	s.endReason = reason
	return true
}

// Record summarizes an ending session.
func (s *Session) Record() (domain.StreamRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ending {
		return domain.StreamRecord{}, fmt.Errorf("%s: %w (state %s)", s.Streamer, ErrNotEnding, s.state)
	}
	return domain.StreamRecord{
		StreamID:        fmt.Sprintf("%s_%d", s.Streamer, s.startTime.UnixMilli()),
		StartTime:       s.startTime,
		EndTime:         s.endTime,
		DurationSeconds: int64(math.Round(s.endTime.Sub(s.startTime).Seconds())),
		Gifts:           s.agg.Gifts(),
		TotalGiftValue:  s.agg.TotalValue(),
		TopSenders:      s.agg.TopSenders(domain.TopSenderLimit),
		EndReason:       s.endReason,
	}, nil
}

// Close releases the connection and discards the totals of an ending session.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.fire(TriggerClosed) {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w (state %s)", s.Streamer, ErrNotEnding, s.state)
	}
	conn := s.conn
	s.conn = nil
	s.agg = nil
	s.startTime = time.Time{}
	s.endTime = time.Time{}
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Disconnect()
}
