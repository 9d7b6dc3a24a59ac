package fill

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
	"github.com/lumenquant/tradingcore/internal/ledger"
	"github.com/lumenquant/tradingcore/internal/order"
	"github.com/lumenquant/tradingcore/internal/outbox"
	"github.com/lumenquant/tradingcore/internal/risk"
)

const avgPriceScale = 4

// KillSwitch is the subset of risk.KillSwitch the processor needs to trip
// trading halts when a fill's realized loss breaches the daily limit.
type KillSwitch interface {
	Trip(reason string) risk.KillSwitchState
}

// Processor applies broker fill notifications to orders and positions,
// invoked from the broker adapter's fill subscription, as a standalone,
// transactional, duplicate-safe use case.
type Processor struct {
	orders     *order.Store
	ledgerStr  *ledger.Store
	outboxStr  *outbox.Store
	rules      *risk.RuleSet
	killSwitch KillSwitch
	dedup      *DuplicateFilter
}

// NewProcessor wires the fill use case over its dependencies.
func NewProcessor(orders *order.Store, ledgerStr *ledger.Store, outboxStr *outbox.Store, rules *risk.RuleSet, killSwitch KillSwitch) *Processor {
	return &Processor{
		orders:     orders,
		ledgerStr:  ledgerStr,
		outboxStr:  outboxStr,
		rules:      rules,
		killSwitch: killSwitch,
		dedup:      NewDuplicateFilter(),
	}
}

// Apply validates, deduplicates, and applies one fill: it updates the
// resting order's cumulative filled quantity and state, upserts the
// position, appends a realized-P&L ledger entry, and emits FillApplied,
// PositionUpdated, and (when P&L moved) PnLUpdated outbox events — all
// within a single transaction. If the fill pushes the day's realized P&L
// past the configured daily loss limit, a KillSwitchTriggered event is
// appended in that same transaction and the kill switch is tripped once the
// transaction commits. A fill already seen within the dedup TTL is silently
// dropped.
func (p *Processor) Apply(f domain.Fill) error {
	now := time.Now()

	if err := Validate(f, now); err != nil {
		log.Warn().Err(err).Str("fill_id", f.ID).Msg("⚠️ dropping invalid fill")
		return nil
	}

	if !p.dedup.PutIfAbsent(f.ID, now) {
		log.Debug().Str("fill_id", f.ID).Msg("♻️ dropping duplicate fill")
		return nil
	}

	o, err := p.orders.Get(f.OrderID)
	if err != nil {
		log.Warn().Err(err).Str("order_id", f.OrderID).Str("fill_id", f.ID).Msg("⚠️ fill references unknown order, dropping")
		return nil
	}
	if o.State.IsTerminal() {
		log.Warn().Str("order_id", o.ID).Str("state", string(o.State)).Msg("⚠️ fill arrived for a terminal order, dropping")
		return nil
	}

	cumulative := o.FilledQuantity.Add(f.Quantity)
	if cumulative.GreaterThan(o.Quantity) {
		return fmt.Errorf("fill %s would over-fill order %s (%s + %s > %s)", f.ID, o.ID, o.FilledQuantity, f.Quantity, o.Quantity)
	}

	rule := p.rules.Resolve(o.StrategyID, o.Symbol)

	existingPos, err := p.ledgerStr.GetPosition(o.Symbol)
	if err != nil {
		return fmt.Errorf("load position for fill application: %w", err)
	}

	newPos, realizedDelta, err := applyToPosition(existingPos, f.Side, f.Quantity, f.Price, rule.ShortingAllowed)
	if err != nil {
		return fmt.Errorf("apply fill %s to position: %w", f.ID, err)
	}
	newPos.AvgEntryPrice = newPos.AvgEntryPrice.Round(avgPriceScale)
	newPos.RealizedPnL = existingPos.RealizedPnL.Add(realizedDelta)
	newPos.UpdatedAt = now

	o.FilledQuantity = cumulative
	o.AvgFillPrice = weightedAvg(o.FilledQuantity.Sub(f.Quantity), o.AvgFillPrice, f.Quantity, f.Price)
	if cumulative.Equal(o.Quantity) {
		o.State = domain.OrderStateFilled
	} else {
		o.State = domain.OrderStatePartiallyFilled
	}
	o.UpdatedAt = now

	tx := p.orders.DB().Begin()
	if err := p.orders.UpdateState(tx, o); err != nil {
		tx.Rollback()
		return fmt.Errorf("persist order fill state: %w", err)
	}
	if err := p.ledgerStr.SavePosition(tx, newPos); err != nil {
		tx.Rollback()
		return fmt.Errorf("persist position after fill: %w", err)
	}
	if !realizedDelta.IsZero() {
		if err := p.ledgerStr.AppendPnL(tx, o.Symbol, o.ID, f.ID, realizedDelta, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("append pnl entry: %w", err)
		}
	}
	if err := p.outboxStr.Append(tx, o.ID, "FillApplied", f); err != nil {
		tx.Rollback()
		return fmt.Errorf("append fill outbox event: %w", err)
	}
	if err := p.outboxStr.Append(tx, newPos.Symbol, "PositionUpdated", newPos); err != nil {
		tx.Rollback()
		return fmt.Errorf("append position outbox event: %w", err)
	}
	if !realizedDelta.IsZero() {
		if err := p.outboxStr.Append(tx, o.Symbol, "PnLUpdated", realizedDelta); err != nil {
			tx.Rollback()
			return fmt.Errorf("append pnl outbox event: %w", err)
		}
	}

	var haltReason string
	if !rule.DailyLossLimit.IsZero() {
		daily, err := p.ledgerStr.DailyRealizedPnL(tx, now)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sum daily realized pnl: %w", err)
		}
		if daily.LessThan(rule.DailyLossLimit.Neg()) {
			haltReason = fmt.Sprintf("daily loss limit breached: %s < -%s", daily, rule.DailyLossLimit)
			if err := p.outboxStr.Append(tx, o.Symbol, "KillSwitchTriggered", haltReason); err != nil {
				tx.Rollback()
				return fmt.Errorf("append kill switch outbox event: %w", err)
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit fill application: %w", err)
	}

	log.Info().Str("fill_id", f.ID).Str("order_id", o.ID).Str("symbol", o.Symbol).Str("realized_delta", realizedDelta.String()).Msg("💰 fill applied")

	if haltReason != "" {
		state := p.killSwitch.Trip(haltReason)
		log.Error().Str("kill_switch_state", string(state)).Str("reason", haltReason).Msg("🛑 daily loss limit breached")
	}

	return nil
}

// weightedAvg folds one more fill into a running average fill price.
func weightedAvg(priorQty, priorAvg, fillQty, fillPrice decimal.Decimal) decimal.Decimal {
	newQty := priorQty.Add(fillQty)
	if newQty.IsZero() {
		return decimal.Zero
	}
	total := priorAvg.Mul(priorQty).Add(fillPrice.Mul(fillQty))
	return total.Div(newQty).Round(avgPriceScale)
}
