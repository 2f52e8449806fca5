package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"stockml-engine/internal/models"
)

func curveOf(equities []float64) []models.PortfolioState {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	curve := make([]models.PortfolioState, len(equities))
	for i, e := range equities {
		curve[i] = models.PortfolioState{Date: start.AddDate(0, 0, i), Cash: e, Equity: e}
	}
	return curve
}

func TestMetricsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("max drawdown is never positive", prop.ForAll(
		func(equities []float64) bool {
			report := Compute(curveOf(equities), nil)
			return report.MaxDrawdown <= 0
		},
		gen.SliceOfN(20, gen.Float64Range(1, 1e6)),
	))

	properties.Property("non-decreasing curve has zero drawdown", prop.ForAll(
		func(increments []float64) bool {
			equities := make([]float64, len(increments))
			running := 1000.0
			for i, inc := range increments {
				running += inc
				equities[i] = running
			}
			report := Compute(curveOf(equities), nil)
			return report.MaxDrawdown == 0
		},
		gen.SliceOfN(15, gen.Float64Range(0, 100)),
	))

	properties.Property("total return matches endpoints", prop.ForAll(
		func(equities []float64) bool {
			report := Compute(curveOf(equities), nil)
			want := equities[len(equities)-1]/equities[0] - 1
			return math.Abs(report.TotalReturn-want) < 1e-9
		},
		gen.SliceOfN(10, gen.Float64Range(100, 1e6)),
	))

	properties.TestingRun(t)
}

func TestComputeFlatCurve(t *testing.T) {
	report := Compute(curveOf([]float64{1000, 1000, 1000, 1000}), nil)

	if report.TotalReturn != 0 {
		t.Errorf("TotalReturn = %f, want 0", report.TotalReturn)
	}
	if report.AnnualizedReturn != 0 {
		t.Errorf("AnnualizedReturn = %f, want 0", report.AnnualizedReturn)
	}
	if report.MaxDrawdown != 0 {
		t.Errorf("MaxDrawdown = %f, want 0", report.MaxDrawdown)
	}
	if report.SharpeRatio != 0 {
		t.Errorf("flat curve SharpeRatio = %f, want 0", report.SharpeRatio)
	}
	if report.FinalEquity != 1000 {
		t.Errorf("FinalEquity = %f, want 1000", report.FinalEquity)
	}
}

func TestComputeEmptyCurve(t *testing.T) {
	report := Compute(nil, nil)
	if report != EmptyReport() {
		t.Errorf("empty inputs should yield the sentinel-zero report, got %+v", report)
	}
}

func TestComputeKnownDrawdown(t *testing.T) {
	// Peak 1200, trough 900: drawdown 900/1200 - 1 = -0.25.
	report := Compute(curveOf([]float64{1000, 1200, 900, 1100}), nil)
	if math.Abs(report.MaxDrawdown-(-0.25)) > 1e-12 {
		t.Errorf("MaxDrawdown = %f, want -0.25", report.MaxDrawdown)
	}
}

func TestComputeAnnualizedReturn(t *testing.T) {
	// One year of trading days at +10% total.
	equities := make([]float64, TradingDaysPerYear)
	for i := range equities {
		equities[i] = 1000 + 100*float64(i)/float64(TradingDaysPerYear-1)
	}
	report := Compute(curveOf(equities), nil)

	if math.Abs(report.TotalReturn-0.1) > 1e-9 {
		t.Errorf("TotalReturn = %f, want 0.10", report.TotalReturn)
	}
	if math.Abs(report.AnnualizedReturn-0.1) > 1e-9 {
		t.Errorf("252-day window should annualize to itself, got %f", report.AnnualizedReturn)
	}
}

func TestWinRate(t *testing.T) {
	entry := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	exit := entry.AddDate(0, 0, 5)
	price := func(v float64) *float64 { return &v }

	trades := []models.Trade{
		{EntryDate: entry, EntryPrice: 100, ExitDate: &exit, ExitPrice: price(110), Quantity: 1},
		{EntryDate: entry, EntryPrice: 100, ExitDate: &exit, ExitPrice: price(90), Quantity: 1},
		{EntryDate: entry, EntryPrice: 100, ExitDate: &exit, ExitPrice: price(105), Quantity: 1},
		{EntryDate: entry, EntryPrice: 100, Quantity: 1}, // still open, excluded
	}

	report := Compute(curveOf([]float64{1000, 1010}), trades)
	if report.TradeCount != 4 {
		t.Errorf("TradeCount = %d, want 4", report.TradeCount)
	}
	if math.Abs(report.WinRate-2.0/3.0) > 1e-12 {
		t.Errorf("WinRate = %f, want 2/3", report.WinRate)
	}

	if got := Compute(curveOf([]float64{1000}), nil).WinRate; got != 0 {
		t.Errorf("no trades WinRate = %f, want 0", got)
	}
}
