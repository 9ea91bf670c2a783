package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/events"
)

// maxDrawdownEvents bounds the audit ring buffer
const maxDrawdownEvents = 100

// ValueSource provides the current portfolio value for drawdown tracking
type ValueSource interface {
	PortfolioValue(ctx context.Context) (float64, error)
}

// KillSwitch tracks peak portfolio value against current value and halts
// trading when drawdown breaches the configured maximum. State is mutated
// only by the monitoring loop and by manual calls, both serialized behind
// a single mutex.
type KillSwitch struct {
	cfg     config.KillSwitchConfig
	values  ValueSource
	stopper domain.BotStopper
	events  *events.Manager
	log     zerolog.Logger

	mu        sync.Mutex
	state     DrawdownState
	audit     []DrawdownEvent
	callbacks []func(DrawdownEvent)

	monitorMu sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewKillSwitch creates a drawdown kill switch. stopper may be nil when no
// trading halt side effect is wired.
func NewKillSwitch(cfg config.KillSwitchConfig, values ValueSource, stopper domain.BotStopper, evts *events.Manager, log zerolog.Logger) *KillSwitch {
	return &KillSwitch{
		cfg:     cfg,
		values:  values,
		stopper: stopper,
		events:  evts,
		log:     log.With().Str("service", "kill_switch").Logger(),
	}
}

// StartMonitoring launches the periodic drawdown check. Calling it while a
// monitor is already running is a no-op with a warning.
func (k *KillSwitch) StartMonitoring(ctx context.Context) {
	k.monitorMu.Lock()
	defer k.monitorMu.Unlock()

	if k.cancel != nil {
		k.log.Warn().Msg("Drawdown monitor already running, ignoring start request")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	k.cancel = cancel
	k.done = make(chan struct{})

	interval := k.cfg.CheckInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	go func() {
		defer close(k.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		k.log.Info().Dur("interval", interval).Msg("Drawdown monitor started")
		for {
			select {
			case <-ctx.Done():
				k.log.Info().Msg("Drawdown monitor stopped")
				return
			case <-ticker.C:
				k.Tick(ctx)
			}
		}
	}()
}

// StopMonitoring cancels the monitor and waits for it to exit
func (k *KillSwitch) StopMonitoring() {
	k.monitorMu.Lock()
	defer k.monitorMu.Unlock()

	if k.cancel == nil {
		return
	}
	k.cancel()
	<-k.done
	k.cancel = nil
	k.done = nil
}

// Tick runs one monitoring cycle: read the portfolio value, update the peak
// and evaluate threshold transitions
func (k *KillSwitch) Tick(ctx context.Context) {
	value, err := k.values.PortfolioValue(ctx)
	if err != nil {
		k.log.Warn().Err(err).Msg("Failed to read portfolio value, skipping drawdown check")
		return
	}
	if value <= 0 {
		return
	}
	k.CheckValue(value)
}

// CheckValue evaluates a portfolio value against the drawdown thresholds
func (k *KillSwitch) CheckValue(value float64) {
	k.mu.Lock()

	if value > k.state.PeakValue {
		k.state.PeakValue = value
	}
	k.state.CurrentValue = value

	var drawdown float64
	if k.state.PeakValue > 0 {
		drawdown = (k.state.PeakValue - value) / k.state.PeakValue * 100
	}
	k.state.CurrentDrawdownPercent = drawdown
	if drawdown > k.state.MaxDrawdownPercent {
		k.state.MaxDrawdownPercent = drawdown
	}

	var fired []DrawdownEvent
	if !k.state.Active {
		switch {
		case drawdown >= k.cfg.MaxDrawdownPercent:
			reason := fmt.Sprintf("drawdown %.2f%% breached maximum %.2f%%", drawdown, k.cfg.MaxDrawdownPercent)
			fired = k.activateLocked(reason)
		case drawdown >= k.cfg.CriticalThresholdPercent:
			fired = append(fired, k.recordEventLocked(EventCritical,
				fmt.Sprintf("drawdown %.2f%% at critical threshold", drawdown)))
		case drawdown >= k.cfg.WarningThresholdPercent:
			fired = append(fired, k.recordEventLocked(EventWarning,
				fmt.Sprintf("drawdown %.2f%% at warning threshold", drawdown)))
		}
	} else if k.cfg.AutoRecovery && drawdown <= k.cfg.RecoveryThresholdPercent {
		fired = append(fired, k.recordEventLocked(EventRecovery,
			fmt.Sprintf("drawdown recovered to %.2f%%", drawdown)))
		fired = append(fired, k.deactivateLocked(
			fmt.Sprintf("auto-recovery at %.2f%% drawdown", drawdown))...)
	}

	callbacks := append([]func(DrawdownEvent){}, k.callbacks...)
	k.mu.Unlock()

	k.notify(callbacks, fired)
}

// ManuallyActivate engages the kill switch through the same path as the
// automatic transition. Returns false when already active.
func (k *KillSwitch) ManuallyActivate(reason string) bool {
	k.mu.Lock()
	if k.state.Active {
		k.mu.Unlock()
		return false
	}
	fired := k.activateLocked("manual: " + reason)
	callbacks := append([]func(DrawdownEvent){}, k.callbacks...)
	k.mu.Unlock()

	k.notify(callbacks, fired)
	return true
}

// ManuallyDeactivate disengages the kill switch. Returns false when not
// active.
func (k *KillSwitch) ManuallyDeactivate(reason string) bool {
	k.mu.Lock()
	if !k.state.Active {
		k.mu.Unlock()
		return false
	}
	fired := k.deactivateLocked("manual: " + reason)
	callbacks := append([]func(DrawdownEvent){}, k.callbacks...)
	k.mu.Unlock()

	k.notify(callbacks, fired)
	return true
}

// ResetPeak overrides the tracked peak and clears the worst observed
// drawdown. The peak never decreases otherwise.
func (k *KillSwitch) ResetPeak(value float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state.PeakValue = value
	k.state.MaxDrawdownPercent = 0
	k.log.Info().Float64("peak", value).Msg("Peak value manually reset")
}

// IsActive reports whether the kill switch is engaged
func (k *KillSwitch) IsActive() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.Active
}

// GetState returns a defensive snapshot of the current state
func (k *KillSwitch) GetState() DrawdownState {
	k.mu.Lock()
	defer k.mu.Unlock()

	snapshot := k.state
	if k.state.ActivatedAt != nil {
		t := *k.state.ActivatedAt
		snapshot.ActivatedAt = &t
	}
	if k.state.DeactivatedAt != nil {
		t := *k.state.DeactivatedAt
		snapshot.DeactivatedAt = &t
	}
	return snapshot
}

// GetEvents returns up to limit most recent audit events in chronological
// order. limit <= 0 returns the full buffer.
func (k *KillSwitch) GetEvents(limit int) []DrawdownEvent {
	k.mu.Lock()
	defer k.mu.Unlock()

	start := 0
	if limit > 0 && len(k.audit) > limit {
		start = len(k.audit) - limit
	}
	out := make([]DrawdownEvent, len(k.audit)-start)
	copy(out, k.audit[start:])
	return out
}

// Subscribe registers a callback invoked for every drawdown event.
// Callback panics are recovered and logged so one failing observer cannot
// block the others.
func (k *KillSwitch) Subscribe(cb func(DrawdownEvent)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.callbacks = append(k.callbacks, cb)
}

func (k *KillSwitch) activateLocked(reason string) []DrawdownEvent {
	now := time.Now().UTC()
	k.state.Active = true
	k.state.ActivatedAt = &now
	k.state.DeactivatedAt = nil
	k.state.Reason = reason

	event := k.recordEventLocked(EventKillSwitchActivated, reason)
	k.log.Error().
		Float64("drawdown_percent", k.state.CurrentDrawdownPercent).
		Str("reason", reason).
		Msg("KILL SWITCH ACTIVATED")

	if k.cfg.ShutdownAllBots && k.stopper != nil {
		// Best effort: a failed halt must not prevent the state transition.
		if err := k.stopper.StopAllBots(reason); err != nil {
			k.log.Error().Err(err).Msg("Failed to stop bots during kill switch activation")
		}
	}
	return []DrawdownEvent{event}
}

func (k *KillSwitch) deactivateLocked(reason string) []DrawdownEvent {
	now := time.Now().UTC()
	k.state.Active = false
	k.state.DeactivatedAt = &now
	k.state.Reason = reason

	event := k.recordEventLocked(EventKillSwitchDeactivated, reason)
	k.log.Warn().Str("reason", reason).Msg("Kill switch deactivated")
	return []DrawdownEvent{event}
}

func (k *KillSwitch) recordEventLocked(eventType DrawdownEventType, message string) DrawdownEvent {
	event := DrawdownEvent{
		EventType:       eventType,
		DrawdownPercent: k.state.CurrentDrawdownPercent,
		PeakValue:       k.state.PeakValue,
		CurrentValue:    k.state.CurrentValue,
		Timestamp:       time.Now().UTC(),
		Message:         message,
	}
	k.audit = append(k.audit, event)
	if len(k.audit) > maxDrawdownEvents {
		k.audit = k.audit[len(k.audit)-maxDrawdownEvents:]
	}
	return event
}

// notify fans events out to subscribers and the event manager outside the
// state lock
func (k *KillSwitch) notify(callbacks []func(DrawdownEvent), fired []DrawdownEvent) {
	for _, event := range fired {
		k.publish(event)
		for _, cb := range callbacks {
			k.invoke(cb, event)
		}
	}
}

func (k *KillSwitch) invoke(cb func(DrawdownEvent), event DrawdownEvent) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error().Interface("panic", r).Str("event_type", string(event.EventType)).Msg("Drawdown event callback panicked")
		}
	}()
	cb(event)
}

func (k *KillSwitch) publish(event DrawdownEvent) {
	if k.events == nil {
		return
	}
	data := map[string]any{
		"drawdown_percent": event.DrawdownPercent,
		"peak_value":       event.PeakValue,
		"current_value":    event.CurrentValue,
		"message":          event.Message,
	}
	switch event.EventType {
	case EventWarning:
		k.events.Emit(events.DrawdownWarning, "risk", data)
	case EventCritical:
		k.events.Emit(events.DrawdownCritical, "risk", data)
	case EventKillSwitchActivated:
		k.events.Emit(events.KillSwitchActivated, "risk", data)
	case EventKillSwitchDeactivated:
		k.events.Emit(events.KillSwitchDeactivated, "risk", data)
	}
}
