package stream

import (
	"sync"
	"time"
)

// HeartbeatPolicy configures the ping/pong liveness check layered on top of
// a streaming connection.
type HeartbeatPolicy struct {
	PingInterval         time.Duration
	PongTimeout          time.Duration
	MaxConsecutiveMisses int
}

// DefaultHeartbeatPolicy matches spec: ping every 30s, expect a pong within
// 10s, three consecutive misses trigger a reconnect.
func DefaultHeartbeatPolicy() HeartbeatPolicy {
	return HeartbeatPolicy{PingInterval: 30 * time.Second, PongTimeout: 10 * time.Second, MaxConsecutiveMisses: 3}
}

// missTracker tracks whether the most recent ping has been answered yet,
// and counts consecutive misses toward the policy's reconnect threshold.
type missTracker struct {
	mu          sync.Mutex
	policy      HeartbeatPolicy
	misses      int
	pongPending bool
}

func newMissTracker(policy HeartbeatPolicy) *missTracker {
	return &missTracker{policy: policy}
}

// armPing marks that a ping was just sent and no pong has answered it yet.
func (m *missTracker) armPing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pongPending = true
}

// recordPong answers the currently armed ping and resets the miss streak.
func (m *missTracker) recordPong() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pongPending = false
	m.misses = 0
}

// checkTimeout is called once PongTimeout has elapsed since armPing. It
// reports whether the connection should now be torn down and reconnected.
func (m *missTracker) checkTimeout() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pongPending {
		return false
	}
	m.misses++
	return m.misses >= m.policy.MaxConsecutiveMisses
}
