// Package risk runs the pre-trade risk gate: an ordered sequence of checks
// plus a three-state kill switch (NORMAL / WARNING / HALTED) that can halt
// all trading independent of the per-signal checks.
package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// KillSwitchState is the current trading-halt state.
type KillSwitchState string

const (
	KillSwitchNormal  KillSwitchState = "NORMAL"
	KillSwitchWarning KillSwitchState = "WARNING"
	KillSwitchHalted  KillSwitchState = "HALTED"
)

// KillSwitch tracks consecutive order failures and daily-loss breaches,
// escalating from NORMAL to WARNING to HALTED. A HALTED switch only
// returns to NORMAL via an explicit operator Reset; the daily rollover
// only clears the WARNING state and failure counters.
type KillSwitch struct {
	mu sync.Mutex

	maxConsecutiveFailures int
	warningThreshold       int // failures at which state becomes WARNING

	state               KillSwitchState
	consecutiveFailures int
	haltedAt            time.Time
	haltReason          string
	lastResetDay        int
}

// NewKillSwitch builds a kill switch that halts after maxConsecutiveFailures
// consecutive order failures, warning once failures reach half that count.
func NewKillSwitch(maxConsecutiveFailures int) *KillSwitch {
	warning := maxConsecutiveFailures / 2
	if warning < 1 {
		warning = 1
	}
	return &KillSwitch{
		maxConsecutiveFailures: maxConsecutiveFailures,
		warningThreshold:       warning,
		state:                  KillSwitchNormal,
		lastResetDay:           time.Now().YearDay(),
	}
}

// State returns the current kill switch state, performing the daily reset
// check first.
func (k *KillSwitch) State() KillSwitchState {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.checkDayReset()
	return k.state
}

// RecordFailure registers an order failure and escalates state if the
// consecutive-failure threshold is crossed.
func (k *KillSwitch) RecordFailure(reason string) KillSwitchState {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.checkDayReset()

	k.consecutiveFailures++
	switch {
	case k.consecutiveFailures >= k.maxConsecutiveFailures:
		if k.state != KillSwitchHalted {
			k.state = KillSwitchHalted
			k.haltedAt = time.Now()
			k.haltReason = reason
			log.Error().Str("reason", reason).Int("consecutive_failures", k.consecutiveFailures).Msg("🚨 kill switch HALTED")
		}
	case k.consecutiveFailures >= k.warningThreshold:
		if k.state == KillSwitchNormal {
			k.state = KillSwitchWarning
			log.Warn().Int("consecutive_failures", k.consecutiveFailures).Msg("⚠️ kill switch WARNING")
		}
	}
	return k.state
}

// Trip halts the switch immediately for reason, regardless of the
// consecutive-failure count. Used for triggers that are not failure-count
// based, such as a daily-loss-limit breach.
func (k *KillSwitch) Trip(reason string) KillSwitchState {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.checkDayReset()

	if k.state != KillSwitchHalted {
		k.state = KillSwitchHalted
		k.haltedAt = time.Now()
		k.haltReason = reason
		log.Error().Str("reason", reason).Msg("🚨 kill switch HALTED")
	}
	return k.state
}

// ConsecutiveFailures returns the current consecutive-failure count.
func (k *KillSwitch) ConsecutiveFailures() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.consecutiveFailures
}

// MaxConsecutiveFailures returns the configured halt threshold.
func (k *KillSwitch) MaxConsecutiveFailures() int {
	return k.maxConsecutiveFailures
}

// RecordSuccess clears the consecutive-failure counter. It does not
// automatically un-halt a HALTED switch — that requires an explicit
// operator Reset; there is no automatic recovery from HALTED.
func (k *KillSwitch) RecordSuccess() KillSwitchState {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.checkDayReset()

	k.consecutiveFailures = 0
	if k.state == KillSwitchWarning {
		k.state = KillSwitchNormal
	}
	return k.state
}

// Reset is an explicit operator action that clears a HALTED kill switch
// back to NORMAL.
func (k *KillSwitch) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state = KillSwitchNormal
	k.consecutiveFailures = 0
	k.haltReason = ""
	log.Info().Msg("✅ kill switch reset by operator")
}

// HaltReason returns the reason the switch last halted, if currently
// HALTED.
func (k *KillSwitch) HaltReason() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.haltReason
}

func (k *KillSwitch) checkDayReset() {
	today := time.Now().YearDay()
	if k.lastResetDay != today {
		k.lastResetDay = today
		k.consecutiveFailures = 0
		if k.state == KillSwitchWarning {
			k.state = KillSwitchNormal
		}
		log.Info().Msg("📅 kill switch daily counters reset")
	}
}
