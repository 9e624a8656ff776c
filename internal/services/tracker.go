package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/live"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/metrics"
	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/session"
)

const (
	defaultPollInterval = 5 * time.Minute
	defaultPacing       = time.Second
	defaultPersistLimit = 30 * time.Second
)

// TrackerConfig holds the timing knobs of the poll cycle.
type TrackerConfig struct {
	PollInterval    time.Duration
	ConnectPacing   time.Duration
	NotLiveCooldown time.Duration
	ConnectTimeout  time.Duration
	StateTimeout    time.Duration
	// ShutdownTimeout bounds the final flush and every history write.
	ShutdownTimeout time.Duration
}

// RetryPolicy maps a connect failure category to the cooldown before the
// streamer is tried again. Zero means the next cycle.
type RetryPolicy map[domain.FailureCategory]time.Duration

func DefaultRetryPolicy(notLiveCooldown time.Duration) RetryPolicy {
	return RetryPolicy{
		domain.FailureNotLive: notLiveCooldown,
		domain.FailureTimeout: 0,
		domain.FailureOther:   0,
	}
}

// HistoryWriter persists a finished stream record.
type HistoryWriter interface {
	Merge(ctx context.Context, streamerID, date string, rec domain.StreamRecord) error
}

// DeadLetterPublisher receives records that could not be merged.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, dl domain.DeadLetter) error
}

// StreamerStatus is a read-only view of one tracked streamer.
type StreamerStatus struct {
	StreamerID string     `json:"streamer_id"`
	State      string     `json:"state"`
	LiveSince  *time.Time `json:"live_since,omitempty"`
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// WithSleeper replaces the pacing sleep.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) TrackerOption {
	return func(t *Tracker) { t.sleep = sleep }
}

// WithDeadLetters routes records that failed to merge to p.
func WithDeadLetters(p DeadLetterPublisher) TrackerOption {
	return func(t *Tracker) { t.deadLetters = p }
}

// Tracker drives the poll cycle: it connects to streamers that are not yet
// tracked, watches live ones for silent drops and finalizes ended sessions.
type Tracker struct {
	streamers   []string
	adapter     live.Adapter
	registry    *session.Registry
	history     HistoryWriter
	deadLetters DeadLetterPublisher
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	cfg         TrackerConfig
	policy      RetryPolicy

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	retryAfter map[string]time.Time
	// closing is set once Shutdown starts; no event-driven finalize begins after it.
	closing bool

	inflight sync.WaitGroup
}

func NewTracker(
	streamers []string,
	adapter live.Adapter,
	registry *session.Registry,
	history HistoryWriter,
	cfg TrackerConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
	opts ...TrackerOption,
) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ConnectPacing < 0 {
		cfg.ConnectPacing = defaultPacing
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultPersistLimit
	}
	t := &Tracker{
		streamers:  append([]string(nil), streamers...),
		adapter:    adapter,
		registry:   registry,
		history:    history,
		metrics:    m,
		logger:     logger.With().Str("component", "tracker").Logger(),
		cfg:        cfg,
		policy:     DefaultRetryPolicy(cfg.NotLiveCooldown),
		now:        time.Now,
		sleep:      sleepContext,
		retryAfter: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run polls once immediately and then on every interval until ctx is done.
// Live sessions are finalized before it returns.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info().
		Int("streamers", len(t.streamers)).
		Dur("interval", t.cfg.PollInterval).
		Msg("tracker started")

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		t.RunCycle(ctx)
		select {
		case <-ctx.Done():
			t.Shutdown()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle processes every tracked streamer once, in list order.
func (t *Tracker) RunCycle(ctx context.Context) {
	for _, id := range t.streamers {
		if ctx.Err() != nil {
			return
		}
		t.processStreamer(ctx, id)
	}
}

func (t *Tracker) processStreamer(ctx context.Context, id string) {
	log := t.logger.With().Str("streamer", id).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("streamer processing panicked")
			t.releaseConnecting(id)
		}
	}()

	if s, ok := t.registry.Get(id); ok {
		if s.State() == session.Live {
			t.checkLive(ctx, id, s)
		}
		return
	}

	if until, cooling := t.coolingDown(id); cooling {
		log.Debug().Time("retry_after", until).Msg("skipping streamer in cooldown")
		return
	}

	t.connect(ctx, id)
	if err := t.sleep(ctx, t.cfg.ConnectPacing); err != nil {
		log.Debug().Err(err).Msg("pacing interrupted")
	}
}

// releaseConnecting drops a session left half-connected by a panic so the
// streamer is retried on the next cycle.
func (t *Tracker) releaseConnecting(id string) {
	s, ok := t.registry.Get(id)
	if !ok || s.State() != session.Connecting {
		return
	}
	s.ConnectFailed()
	t.registry.Remove(id, s)
}

func (t *Tracker) coolingDown(id string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	until, ok := t.retryAfter[id]
	if !ok {
		return time.Time{}, false
	}
	if !t.now().Before(until) {
		delete(t.retryAfter, id)
		return time.Time{}, false
	}
	return until, true
}

func (t *Tracker) setCooldown(id string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d <= 0 {
		delete(t.retryAfter, id)
		return
	}
	t.retryAfter[id] = t.now().Add(d)
}

func (t *Tracker) connect(ctx context.Context, id string) {
	log := t.logger.With().Str("streamer", id).Logger()

	s, err := t.registry.Create(id)
	if err != nil {
		log.Debug().Err(err).Msg("session already registered")
		return
	}
	if !s.BeginConnect() {
		t.registry.Remove(id, s)
		return
	}

	cctx := ctx
	if t.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, t.cfg.ConnectTimeout)
		defer cancel()
	}

	handle, err := t.adapter.Connect(cctx, id)
	if err != nil {
		s.ConnectFailed()
		t.registry.Remove(id, s)
		category := domain.CategoryOf(err)
		if category == domain.FailureOther && errors.Is(cctx.Err(), context.DeadlineExceeded) {
			category = domain.FailureTimeout
		}
		cooldown := t.policy[category]
		t.setCooldown(id, cooldown)
		t.metrics.ConnectFailures.WithLabelValues(string(category)).Inc()
		log.Warn().Err(err).
			Str("category", string(category)).
			Dur("cooldown", cooldown).
			Msg("connect failed")
		return
	}

	start := t.now()
	if !s.Connected(handle, start) {
		_ = handle.Disconnect()
		t.registry.Remove(id, s)
		return
	}
	t.setCooldown(id, 0)
	t.metrics.SessionsStarted.Inc()
	t.metrics.ActiveSessions.Inc()

	err = handle.Subscribe(live.Handlers{
		OnGift:      func(ev domain.GiftEvent) { t.onGift(id, s, ev) },
		OnStreamEnd: func() { t.endSession(context.Background(), id, s, domain.EndStreamEnd) },
		OnInvalid: func(err error) {
			t.metrics.GiftEventsDropped.WithLabelValues("malformed").Inc()
			log.Warn().Err(err).Msg("dropping malformed live event")
		},
	})
	if err != nil {
		t.abort(id, s, err)
		return
	}
	log.Info().Time("start_time", start).Msg("session live")
}

// abort tears down a session that went live but could not be subscribed.
// Nothing was aggregated, so no record is written.
func (t *Tracker) abort(id string, s *session.Session, err error) {
	t.metrics.ConnectFailures.WithLabelValues(string(domain.FailureOther)).Inc()
	t.logger.Warn().Err(err).Str("streamer", id).Msg("subscribe failed")
	if !s.End(domain.EndPollDisconnected, t.now()) {
		return
	}
	if cerr := s.Close(); cerr != nil {
		t.logger.Warn().Err(cerr).Str("streamer", id).Msg("close after failed subscribe")
	}
	t.registry.Remove(id, s)
	t.metrics.ActiveSessions.Dec()
}

func (t *Tracker) onGift(id string, s *session.Session, ev domain.GiftEvent) {
	accepted, counted := s.ApplyGift(ev)
	switch {
	case !accepted:
		t.metrics.GiftEventsDropped.WithLabelValues("not_live").Inc()
	case counted:
		t.metrics.GiftsCounted.Inc()
	case !ev.Final():
		t.metrics.GiftEventsDropped.WithLabelValues("streak_in_progress").Inc()
		t.logger.Debug().
			Str("streamer", id).
			Str("sender", ev.SenderID).
			Str("gift", ev.GiftName).
			Int64("repeat_count", ev.RepeatCount).
			Msg("gift streak in progress")
	default:
		t.metrics.GiftEventsDropped.WithLabelValues("invalid").Inc()
	}
}

func (t *Tracker) checkLive(ctx context.Context, id string, s *session.Session) {
	conn := s.Conn()
	if conn == nil {
		return
	}
	sctx := ctx
	if t.cfg.StateTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, t.cfg.StateTimeout)
		defer cancel()
	}

	st, err := conn.State(sctx)
	if err == nil && st.Live() {
		return
	}
	entry := t.logger.Info().Str("streamer", id).Bool("connected", st.Connected).Str("room_id", st.RoomID)
	if err != nil {
		entry = entry.AnErr("state_error", err)
	}
	entry.Msg("live connection dropped")
	t.endSession(context.WithoutCancel(ctx), id, s, domain.EndPollDisconnected)
}

// endSession finalizes s if this trigger is the first to end it. ctx bounds
// the history write together with the shutdown timeout. Once Shutdown has
// started it does nothing: Shutdown flushes every session still live.
func (t *Tracker) endSession(ctx context.Context, id string, s *session.Session, reason domain.EndReason) {
	if !t.beginFinalize() {
		return
	}
	defer t.inflight.Done()
	if !s.End(reason, t.now()) {
		return
	}
	t.finalize(ctx, id, s, reason)
}

// beginFinalize registers an in-flight finalization unless shutdown has begun.
func (t *Tracker) beginFinalize() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return false
	}
	t.inflight.Add(1)
	return true
}

func (t *Tracker) finalize(ctx context.Context, id string, s *session.Session, reason domain.EndReason) {
	log := t.logger.With().Str("streamer", id).Str("end_reason", string(reason)).Logger()
	defer func() {
		t.registry.Remove(id, s)
		t.metrics.ActiveSessions.Dec()
		t.metrics.SessionsFinalized.WithLabelValues(string(reason)).Inc()
	}()

	rec, err := s.Record()
	if err != nil {
		log.Error().Err(err).Msg("cannot build stream record")
		return
	}

	pctx, cancel := context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
	defer cancel()

	date := rec.Date()
	if err := t.history.Merge(pctx, id, date, rec); err != nil {
		t.deadLetter(ctx, id, date, rec, err)
	} else {
		log.Info().
			Str("stream_id", rec.StreamID).
			Str("date", date).
			Int64("duration_seconds", rec.DurationSeconds).
			Int64("total_gift_value", rec.TotalGiftValue).
			Msg("stream recorded")
	}

	if err := s.Close(); err != nil {
		log.Warn().Err(err).Msg("close live connection")
	}
}

func (t *Tracker) deadLetter(ctx context.Context, id, date string, rec domain.StreamRecord, cause error) {
	t.logger.Error().Err(cause).
		Str("streamer", id).
		Str("date", date).
		Interface("record", rec).
		Msg("history merge failed")

	if t.deadLetters == nil {
		return
	}
	// The merge may have used up its deadline; publishing gets a fresh one.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.ShutdownTimeout)
	defer cancel()

	dl := domain.DeadLetter{
		StreamerID: id,
		Date:       date,
		Reason:     cause.Error(),
		FailedAt:   t.now().UTC(),
		Record:     rec,
	}
	if err := t.deadLetters.Publish(ctx, dl); err != nil {
		t.logger.Error().Err(err).Str("streamer", id).Str("stream_id", rec.StreamID).Msg("dead-letter publish failed")
		return
	}
	t.metrics.DeadLettered.Inc()
}

// Shutdown finalizes every live session and waits for finalizations already
// running on event goroutines, bounded by the shutdown timeout.
func (t *Tracker) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.ShutdownTimeout)
	defer cancel()

	t.mu.Lock()
	t.closing = true
	t.mu.Unlock()

	flushed := 0
	for _, s := range t.registry.List() {
		if !s.End(domain.EndShutdown, t.now()) {
			continue
		}
		t.finalize(ctx, s.Streamer, s, domain.EndShutdown)
		flushed++
	}

	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.logger.Info().Int("flushed", flushed).Msg("tracker stopped")
	case <-ctx.Done():
		t.logger.Error().Int("flushed", flushed).Msg("tracker stopped before every session was persisted")
	}
}

// Statuses reports every tracked streamer with its in-memory state.
func (t *Tracker) Statuses() []StreamerStatus {
	t.mu.Lock()
	retry := make(map[string]time.Time, len(t.retryAfter))
	for k, v := range t.retryAfter {
		retry[k] = v
	}
	t.mu.Unlock()

	out := make([]StreamerStatus, 0, len(t.streamers))
	for _, id := range t.streamers {
		st := StreamerStatus{StreamerID: id, State: session.Disconnected.String()}
		if s, ok := t.registry.Get(id); ok {
			st.State = s.State().String()
			if start := s.StartTime(); !start.IsZero() {
				st.LiveSince = &start
			}
		}
		if until, ok := retry[id]; ok && t.now().Before(until) {
			st.RetryAfter = &until
		}
		out = append(out, st)
	}
	return out
}
