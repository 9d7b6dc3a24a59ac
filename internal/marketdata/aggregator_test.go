package marketdata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
)

func TestAggregatorFoldWithinBucket(t *testing.T) {
	t.Parallel()
	agg := NewAggregator(domain.BarInterval1Min, nil)

	base := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	agg.Fold(domain.Tick{Symbol: "AAPL", Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(10), Timestamp: base})
	agg.Fold(domain.Tick{Symbol: "AAPL", Price: decimal.NewFromInt(105), Size: decimal.NewFromInt(5), Timestamp: base.Add(10 * time.Second)})
	agg.Fold(domain.Tick{Symbol: "AAPL", Price: decimal.NewFromInt(95), Size: decimal.NewFromInt(5), Timestamp: base.Add(20 * time.Second)})

	bar, ok := agg.Current("AAPL")
	if !ok {
		t.Fatal("expected an in-progress bar for AAPL")
	}
	if !bar.Open.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Open = %s, want 100", bar.Open)
	}
	if !bar.High.Equal(decimal.NewFromInt(105)) {
		t.Errorf("High = %s, want 105", bar.High)
	}
	if !bar.Low.Equal(decimal.NewFromInt(95)) {
		t.Errorf("Low = %s, want 95", bar.Low)
	}
	if !bar.Close.Equal(decimal.NewFromInt(95)) {
		t.Errorf("Close = %s, want 95", bar.Close)
	}
	if !bar.Volume.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Volume = %s, want 20", bar.Volume)
	}
	if bar.Sealed {
		t.Error("in-progress bar should not be sealed")
	}
}

func TestAggregatorSealsOnNewBucket(t *testing.T) {
	t.Parallel()
	var sealed []domain.Bar
	agg := NewAggregator(domain.BarInterval1Min, func(b domain.Bar) {
		sealed = append(sealed, b)
	})

	base := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	agg.Fold(domain.Tick{Symbol: "AAPL", Price: decimal.NewFromInt(100), Timestamp: base})
	agg.Fold(domain.Tick{Symbol: "AAPL", Price: decimal.NewFromInt(110), Timestamp: base.Add(70 * time.Second)})

	if len(sealed) != 1 {
		t.Fatalf("expected exactly 1 sealed bar, got %d", len(sealed))
	}
	if !sealed[0].Sealed {
		t.Error("emitted bar should be marked sealed")
	}
	if !sealed[0].Close.Equal(decimal.NewFromInt(100)) {
		t.Errorf("sealed Close = %s, want 100", sealed[0].Close)
	}

	current, ok := agg.Current("AAPL")
	if !ok {
		t.Fatal("expected a new in-progress bar after sealing")
	}
	if !current.Open.Equal(decimal.NewFromInt(110)) {
		t.Errorf("new bar Open = %s, want 110", current.Open)
	}
}

func TestAggregatorSealStale(t *testing.T) {
	t.Parallel()
	var sealed []domain.Bar
	agg := NewAggregator(domain.BarInterval1Min, func(b domain.Bar) {
		sealed = append(sealed, b)
	})

	base := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	agg.Fold(domain.Tick{Symbol: "AAPL", Price: decimal.NewFromInt(100), Timestamp: base})

	agg.SealStale(base.Add(30 * time.Second))
	if len(sealed) != 0 {
		t.Fatal("bar should not seal before its interval elapses")
	}

	agg.SealStale(base.Add(61 * time.Second))
	if len(sealed) != 1 {
		t.Fatalf("expected stale bar to seal, got %d sealed", len(sealed))
	}
}

func TestCacheApplyAndLatest(t *testing.T) {
	t.Parallel()
	c := NewCache()
	sub := c.Subscribe()

	tick := domain.Tick{Symbol: "MSFT", Price: decimal.NewFromInt(300), Timestamp: time.Now()}
	c.Apply(tick)

	got, ok := c.Latest("MSFT")
	if !ok {
		t.Fatal("expected a cached tick for MSFT")
	}
	if !got.Price.Equal(tick.Price) {
		t.Errorf("Latest price = %s, want %s", got.Price, tick.Price)
	}

	select {
	case delivered := <-sub:
		if delivered.Symbol != "MSFT" {
			t.Errorf("subscriber got symbol %s, want MSFT", delivered.Symbol)
		}
	default:
		t.Fatal("expected subscriber to receive the applied tick")
	}

	if _, ok := c.Latest("UNKNOWN"); ok {
		t.Error("Latest should report false for an unseen symbol")
	}
}
