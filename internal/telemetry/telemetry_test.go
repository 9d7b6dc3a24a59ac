package telemetry

import "testing"

func TestNewRegistersWithoutPanicking(t *testing.T) {
	t.Parallel()
	m := New()
	m.OrdersPlaced.WithLabelValues("AAPL", "BUY").Inc()
	m.KillSwitchState.Set(KillSwitchStateValue("HALTED"))

	if got := KillSwitchStateValue("HALTED"); got != 2 {
		t.Errorf("KillSwitchStateValue(HALTED) = %v, want 2", got)
	}
	if got := KillSwitchStateValue("NORMAL"); got != 0 {
		t.Errorf("KillSwitchStateValue(NORMAL) = %v, want 0", got)
	}
}
