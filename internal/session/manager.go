// Package session implements the intention lifecycle state machine:
// start, running, warning, checkin, end, with timer-driven transitions.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/intentd/internal/config"
	"github.com/eliteGoblin/focusd/intentd/internal/domain"
)

// State names the lifecycle states. Ended is transient: it becomes
// NoIntention as soon as the row is persisted.
type State string

const (
	StateNoIntention     State = "no-intention"
	StateActive          State = "active"
	StateCheckinRequired State = "checkin-required"
)

// AlertKind classifies alerts emitted by the state machine.
type AlertKind string

const (
	AlertWarning         AlertKind = "warning"          // timed session entering the warning window
	AlertCheckinRequired AlertKind = "checkin-required" // unlimited session needs acknowledgment
	AlertEnded           AlertKind = "ended"
)

// Alert is delivered on the Alerts channel when the state machine
// crosses a threshold or ends a session.
type Alert struct {
	Kind      AlertKind
	Intention domain.Intention
	EndReason domain.EndReason // set for AlertEnded
}

// StartRequest describes a new intention.
type StartRequest struct {
	Text                string
	Duration            time.Duration // 0 = unlimited
	Apps                []domain.BundleApp
	URLs                []string
	BundleNames         []string
	LLMFilteringEnabled bool
}

// Snapshot is a consistent read of the active session, safe to use
// without holding the manager's lock.
type Snapshot struct {
	State            State
	Intention        *domain.Intention // nil when no intention
	RemainingSeconds int               // -1 for unlimited
}

// Manager owns the active intention and all mutations to it. Every
// read and write path (tick, start, end, acknowledge, snapshot) runs
// under one mutex, so a tick can never observe a half-completed
// transition and evaluation always sees a consistent snapshot.
type Manager struct {
	cfg        config.AppConfig
	intentions domain.IntentionRepository
	bundles    domain.BundleRepository
	history    domain.HistoryRepository
	logger     *zap.Logger

	mu           sync.Mutex
	state        State
	active       *domain.Intention
	warningFired bool
	lastCheckin  time.Time

	alerts chan Alert
}

// NewManager creates a session manager in NoIntention.
func NewManager(
	cfg config.AppConfig,
	intentions domain.IntentionRepository,
	bundles domain.BundleRepository,
	history domain.HistoryRepository,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		cfg:        cfg,
		intentions: intentions,
		bundles:    bundles,
		history:    history,
		logger:     logger,
		state:      StateNoIntention,
		alerts:     make(chan Alert, 8),
	}
}

// Alerts returns the channel carrying warning/checkin/ended alerts.
// Alerts are dropped, not blocked on, when the consumer lags.
func (m *Manager) Alerts() <-chan Alert {
	return m.alerts
}

// Resume recovers a previously-active intention on process start.
// An unexpired session resumes into Active; an expired one is
// finalized as completed and the manager stays in NoIntention.
func (m *Manager) Resume(ctx context.Context) error {
	in, err := m.intentions.FindActiveIntention(ctx)
	if err != nil {
		return fmt.Errorf("find active intention: %w", err)
	}
	if in == nil {
		return nil
	}

	now := time.Now()
	if !in.Unlimited() && !now.Before(in.ExpiresAt()) {
		m.logger.Info("finalizing expired intention from previous run",
			zap.Int64("id", in.ID),
			zap.String("text", in.Text))
		if err := m.intentions.EndIntention(ctx, in.ID, domain.EndCompleted); err != nil {
			m.logger.Warn("failed to finalize expired intention", zap.Error(err))
		}
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = in
	m.state = StateActive
	m.lastCheckin = now
	// Do not re-warn a resumed session already inside the window.
	m.warningFired = !in.Unlimited() && in.ExpiresAt().Sub(now) <= m.cfg.WarningWindow()

	m.logger.Info("resumed active intention",
		zap.Int64("id", in.ID),
		zap.String("text", in.Text))
	return nil
}

// Start begins a new intention. The row is persisted before any
// in-memory state changes; a persistence failure aborts the
// transition and is surfaced to the caller. If another intention is
// active it is ended first with reason new-intention.
func (m *Manager) Start(ctx context.Context, req StartRequest) (domain.Intention, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return domain.Intention{}, fmt.Errorf("intention text must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.endLocked(ctx, domain.EndNewIntention)
	}

	now := time.Now()
	in, err := m.intentions.CreateIntention(ctx, domain.Intention{
		Text:                text,
		DurationSeconds:     int(req.Duration.Seconds()),
		StartedAt:           now,
		LLMFilteringEnabled: req.LLMFilteringEnabled,
	})
	if err != nil {
		return domain.Intention{}, fmt.Errorf("persist intention: %w", err)
	}

	if err := m.materialize(ctx, in.ID, req); err != nil {
		// Don't proceed to Active against a half-attached session;
		// finalize the orphan row so the single-active invariant holds
		// on the next boot.
		if endErr := m.intentions.EndIntention(ctx, in.ID, domain.EndNewIntention); endErr != nil {
			m.logger.Warn("failed to finalize aborted intention", zap.Error(endErr))
		}
		return domain.Intention{}, err
	}

	if err := m.history.RecordSelected(ctx, text); err != nil {
		m.logger.Warn("failed to record intention history", zap.Error(err))
	}

	m.active = &in
	m.state = StateActive
	m.warningFired = false
	m.lastCheckin = now

	m.logger.Info("intention started",
		zap.Int64("id", in.ID),
		zap.String("text", in.Text),
		zap.Int("duration_seconds", in.DurationSeconds),
		zap.Bool("llm_filtering", in.LLMFilteringEnabled))
	return in, nil
}

// materialize attaches the explicit lists plus every selected bundle's
// members to the intention.
func (m *Manager) materialize(ctx context.Context, intentionID int64, req StartRequest) error {
	apps := make([]domain.IntentionApp, 0, len(req.Apps))
	for _, a := range req.Apps {
		apps = append(apps, domain.IntentionApp{
			IntentionID: intentionID,
			Identifier:  a.Identifier,
			DisplayName: a.DisplayName,
		})
	}
	urls := make([]domain.IntentionURL, 0, len(req.URLs))
	for _, u := range req.URLs {
		urls = append(urls, domain.IntentionURL{IntentionID: intentionID, Pattern: u})
	}

	var bundleIDs []int64
	for _, name := range req.BundleNames {
		b, err := m.bundles.GetBundleByName(ctx, name)
		if err != nil {
			return fmt.Errorf("lookup bundle %q: %w", name, err)
		}
		if b == nil {
			return fmt.Errorf("bundle %q not found", name)
		}
		bundleIDs = append(bundleIDs, b.ID)
		bid := b.ID
		for _, a := range b.Apps {
			apps = append(apps, domain.IntentionApp{
				IntentionID: intentionID,
				Identifier:  a.Identifier,
				DisplayName: a.DisplayName,
				FromBundle:  &bid,
			})
		}
		for _, p := range b.URLPatterns {
			urls = append(urls, domain.IntentionURL{
				IntentionID: intentionID,
				Pattern:     p,
				FromBundle:  &bid,
			})
		}
	}

	if err := m.intentions.AttachApps(ctx, apps); err != nil {
		return fmt.Errorf("attach apps: %w", err)
	}
	if err := m.intentions.AttachURLs(ctx, urls); err != nil {
		return fmt.Errorf("attach urls: %w", err)
	}
	if err := m.intentions.AttachBundles(ctx, intentionID, bundleIDs); err != nil {
		return fmt.Errorf("attach bundles: %w", err)
	}
	return nil
}

// End finishes the active intention with the given reason.
func (m *Manager) End(ctx context.Context, reason domain.EndReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return fmt.Errorf("no active intention")
	}
	m.endLocked(ctx, reason)
	return nil
}

// endLocked persists the end best-effort (log and continue: in-memory
// enforcement, not durability, is the correctness property here) and
// clears all session state. Caller holds the mutex.
func (m *Manager) endLocked(ctx context.Context, reason domain.EndReason) {
	in := *m.active
	if err := m.intentions.EndIntention(ctx, in.ID, reason); err != nil {
		m.logger.Warn("failed to persist intention end",
			zap.Int64("id", in.ID),
			zap.Error(err))
	}

	m.active = nil
	m.state = StateNoIntention
	m.warningFired = false
	m.lastCheckin = time.Time{}

	m.logger.Info("intention ended",
		zap.Int64("id", in.ID),
		zap.String("reason", string(reason)))
	m.emit(Alert{Kind: AlertEnded, Intention: in, EndReason: reason})
}

// AcknowledgeCheckin returns an unlimited session from CheckinRequired
// to Active, resetting the elapsed-since-checkin clock.
func (m *Manager) AcknowledgeCheckin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCheckinRequired {
		return fmt.Errorf("no checkin pending")
	}
	m.state = StateActive
	m.lastCheckin = time.Now()
	m.logger.Info("checkin acknowledged", zap.Int64("id", m.active.ID))
	return nil
}

// Tick advances timer-derived state. Called once per second by Run;
// tests drive it directly with synthetic clocks. Ticks arriving after
// an end see no active intention and do nothing, so a stale tick can
// never re-trigger expiration against a cleared session.
func (m *Manager) Tick(ctx context.Context, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return
	}
	in := *m.active

	if in.Unlimited() {
		if m.state == StateActive && now.Sub(m.lastCheckin) >= m.cfg.CheckinInterval() {
			m.state = StateCheckinRequired
			m.logger.Info("checkin required", zap.Int64("id", in.ID))
			m.emit(Alert{Kind: AlertCheckinRequired, Intention: in})
		}
		return
	}

	remaining := int(in.ExpiresAt().Sub(now).Seconds())

	if remaining <= 0 {
		m.endLocked(ctx, domain.EndCompleted)
		return
	}

	warnSec := int(m.cfg.WarningWindow().Seconds())
	if !m.warningFired && remaining <= warnSec && remaining >= warnSec-1 {
		m.warningFired = true
		m.logger.Info("intention ending soon",
			zap.Int64("id", in.ID),
			zap.Int("remaining_seconds", remaining))
		m.emit(Alert{Kind: AlertWarning, Intention: in})
	}
}

// Run drives Tick at 1-second granularity until the context is
// canceled. The ticker is the only timer; ending an intention clears
// the state Tick acts on rather than racing a separate timer.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("session manager stopping")
			return ctx.Err()
		case now := <-ticker.C:
			m.Tick(ctx, now)
		}
	}
}

// Snapshot returns a consistent view of the session for evaluation and
// status reporting.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Snapshot{State: StateNoIntention, RemainingSeconds: -1}
	}

	in := *m.active
	snap := Snapshot{State: m.state, Intention: &in, RemainingSeconds: -1}
	if !in.Unlimited() {
		remaining := int(time.Until(in.ExpiresAt()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		snap.RemainingSeconds = remaining
	}
	return snap
}

func (m *Manager) emit(a Alert) {
	select {
	case m.alerts <- a:
	default:
		m.logger.Warn("alert dropped, consumer lagging", zap.String("kind", string(a.Kind)))
	}
}
