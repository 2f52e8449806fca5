package portfolio

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"stockml-engine/internal/errors"
	"stockml-engine/internal/models"
)

func barSeries(closes []float64) []models.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func alternatingSignals(bars []models.Bar) []models.Signal {
	signals := make([]models.Signal, len(bars))
	for i, bar := range bars {
		action := models.ActionBuy
		if i%2 == 1 {
			action = models.ActionSell
		}
		signals[i] = models.Signal{Date: bar.Date, Instrument: "TEST", Action: action, Confidence: 1}
	}
	return signals
}

// Cash must never go negative and equity must track cash plus
// position marked at the close, whatever the prices or signals.
func TestSimulationInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("cash stays non-negative and equity is consistent", prop.ForAll(
		func(closes []float64, commission float64) bool {
			bars := barSeries(closes)
			result, err := Simulate(Config{
				Instrument:  "TEST",
				InitialCash: 100000,
				Commission:  commission,
			}, bars, alternatingSignals(bars))
			if err != nil {
				return false
			}

			for _, state := range result.Curve {
				if state.Cash < 0 {
					t.Logf("negative cash %f on %s", state.Cash, state.Date)
					return false
				}
			}

			for i, state := range result.Curve {
				want := state.Cash + float64(state.PositionQty)*bars[i].Close
				diff := state.Equity - want
				if diff < -1e-6 || diff > 1e-6 {
					t.Logf("equity %f != cash+position %f on %s", state.Equity, want, state.Date)
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.Float64Range(1, 5000)),
		gen.Float64Range(0, 0.05),
	))

	properties.Property("one curve point per bar", prop.ForAll(
		func(closes []float64) bool {
			bars := barSeries(closes)
			result, err := Simulate(Config{Instrument: "TEST", InitialCash: 50000}, bars, nil)
			return err == nil && len(result.Curve) == len(bars)
		},
		gen.SliceOfN(8, gen.Float64Range(1, 1000)),
	))

	properties.Property("trades close in order and never exceed buys", prop.ForAll(
		func(closes []float64) bool {
			bars := barSeries(closes)
			result, err := Simulate(Config{
				Instrument:  "TEST",
				InitialCash: 100000,
				Commission:  0.0008,
			}, bars, alternatingSignals(bars))
			if err != nil {
				return false
			}
			for _, trade := range result.Trades {
				if trade.Closed() && trade.ExitDate.Before(trade.EntryDate) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(10, gen.Float64Range(1, 2000)),
	))

	properties.TestingRun(t)
}

func TestSimulateZeroCommissionRoundTrip(t *testing.T) {
	// Flat price, zero commission: a full round trip must return the
	// portfolio to exactly its initial cash.
	bars := barSeries([]float64{100, 100, 100, 100})
	signals := []models.Signal{
		{Date: bars[0].Date, Instrument: "TEST", Action: models.ActionBuy},
		{Date: bars[2].Date, Instrument: "TEST", Action: models.ActionSell},
	}

	result, err := Simulate(Config{Instrument: "TEST", InitialCash: 10000}, bars, signals)
	if err != nil {
		t.Fatalf("Simulate returned error: %v", err)
	}

	if got := result.FinalEquity(10000); got != 10000 {
		t.Errorf("final equity = %f, want 10000", got)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("trade count = %d, want 1", len(result.Trades))
	}
	trade := result.Trades[0]
	if !trade.Closed() {
		t.Error("round-trip trade should be closed")
	}
	if trade.CommissionPaid != 0 {
		t.Errorf("commission = %f, want 0", trade.CommissionPaid)
	}
}

func TestSimulateCommissionReducesEquity(t *testing.T) {
	bars := barSeries([]float64{100, 100, 100})
	signals := []models.Signal{
		{Date: bars[0].Date, Instrument: "TEST", Action: models.ActionBuy},
		{Date: bars[1].Date, Instrument: "TEST", Action: models.ActionSell},
	}

	free, err := Simulate(Config{Instrument: "TEST", InitialCash: 10000}, bars, signals)
	if err != nil {
		t.Fatal(err)
	}
	costly, err := Simulate(Config{Instrument: "TEST", InitialCash: 10000, Commission: 0.0008}, bars, signals)
	if err != nil {
		t.Fatal(err)
	}

	if costly.FinalEquity(10000) >= free.FinalEquity(10000) {
		t.Errorf("commission should reduce equity: %f >= %f",
			costly.FinalEquity(10000), free.FinalEquity(10000))
	}
}

func TestSimulateSkipsUnaffordableBuy(t *testing.T) {
	bars := barSeries([]float64{500, 500})
	signals := []models.Signal{
		{Date: bars[0].Date, Instrument: "TEST", Action: models.ActionBuy},
	}

	result, err := Simulate(Config{Instrument: "TEST", InitialCash: 100}, bars, signals)
	if err != nil {
		t.Fatalf("Simulate returned error: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("trade count = %d, want 0", len(result.Trades))
	}
	if len(result.SkippedBuys) != 1 {
		t.Errorf("skipped buys = %d, want 1", len(result.SkippedBuys))
	}
	if got := result.FinalEquity(100); got != 100 {
		t.Errorf("final equity = %f, want untouched 100", got)
	}
}

func TestSimulateRecordsMissedSignalDates(t *testing.T) {
	bars := barSeries([]float64{100, 101, 102})
	orphan := bars[2].Date.AddDate(0, 0, 7)
	signals := []models.Signal{
		{Date: orphan, Instrument: "TEST", Action: models.ActionBuy},
	}

	result, err := Simulate(Config{Instrument: "TEST", InitialCash: 10000}, bars, signals)
	if err != nil {
		t.Fatalf("Simulate returned error: %v", err)
	}
	if len(result.MissedDates) != 1 {
		t.Fatalf("missed dates = %d, want 1", len(result.MissedDates))
	}
	if len(result.Trades) != 0 {
		t.Errorf("orphan signal must not trade, got %d trades", len(result.Trades))
	}
}

func TestSimulateRejectsCorruptBars(t *testing.T) {
	bars := barSeries([]float64{100, 101})
	bars[1].Close = -5

	_, err := Simulate(Config{Instrument: "TEST", InitialCash: 10000}, bars, nil)
	if !errors.Is(err, errors.ErrCorruptInput) {
		t.Errorf("negative close should be corrupt input, got %v", err)
	}

	outOfOrder := barSeries([]float64{100, 101})
	outOfOrder[1].Date = outOfOrder[0].Date
	_, err = Simulate(Config{Instrument: "TEST", InitialCash: 10000}, outOfOrder, nil)
	if !errors.Is(err, errors.ErrCorruptInput) {
		t.Errorf("duplicate dates should be corrupt input, got %v", err)
	}
}

func TestSimulateRejectsBadConfig(t *testing.T) {
	bars := barSeries([]float64{100})
	if _, err := Simulate(Config{Instrument: "TEST", InitialCash: 0}, bars, nil); !errors.Is(err, errors.ErrInvalidConfiguration) {
		t.Errorf("zero cash should be invalid configuration, got %v", err)
	}
	if _, err := Simulate(Config{Instrument: "TEST", InitialCash: 1000, Commission: 1}, bars, nil); !errors.Is(err, errors.ErrInvalidConfiguration) {
		t.Errorf("commission of 1 should be invalid configuration, got %v", err)
	}
}

func TestBuyHoldSignals(t *testing.T) {
	bars := barSeries([]float64{100, 110, 120})
	signals := BuyHoldSignals("TEST", bars)

	if len(signals) != len(bars) {
		t.Fatalf("signal count = %d, want %d", len(signals), len(bars))
	}
	if signals[0].Action != models.ActionBuy {
		t.Errorf("first signal = %s, want BUY", signals[0].Action)
	}
	for _, sig := range signals[1:] {
		if sig.Action != models.ActionHold {
			t.Errorf("signal on %s = %s, want HOLD", sig.Date, sig.Action)
		}
	}

	result, err := Simulate(Config{Instrument: "TEST", InitialCash: 1000}, bars, signals)
	if err != nil {
		t.Fatal(err)
	}
	// 10 shares at 100, marked at 120 on the last bar.
	if got := result.FinalEquity(1000); got != 1200 {
		t.Errorf("buy-and-hold final equity = %f, want 1200", got)
	}
}

func TestSMACrossSignals(t *testing.T) {
	// Down then sharply up: the fast average must cross above the slow
	// one somewhere after the turn.
	closes := make([]float64, 0, 40)
	for i := 0; i < 20; i++ {
		closes = append(closes, 100-float64(i))
	}
	for i := 0; i < 20; i++ {
		closes = append(closes, 81+float64(i)*3)
	}
	bars := barSeries(closes)

	signals := SMACrossSignals("TEST", bars, DefaultFastPeriod, DefaultSlowPeriod)
	if len(signals) != len(bars) {
		t.Fatalf("signal count = %d, want %d", len(signals), len(bars))
	}

	var buys int
	for _, sig := range signals {
		if sig.Action == models.ActionBuy {
			buys++
		}
	}
	if buys == 0 {
		t.Error("expected at least one BUY after the trend reversal")
	}

	if got := SMACrossSignals("TEST", bars, 20, 5); got != nil {
		t.Error("slow period <= fast period should yield no signals")
	}
}
