package models

import "time"

// Trade represents one round trip (or still-open position) produced by
// the portfolio simulator. Open trades have nil ExitDate and ExitPrice;
// a position still held at the end of a run stays open in the log, it
// is never force-closed.
type Trade struct {
	EntryDate      time.Time  `json:"entry_date"`
	ExitDate       *time.Time `json:"exit_date,omitempty"`
	Instrument     string     `json:"instrument"`
	Quantity       int        `json:"quantity"`
	EntryPrice     float64    `json:"entry_price"`
	ExitPrice      *float64   `json:"exit_price,omitempty"`
	CommissionPaid float64    `json:"commission_paid"`
}

// Closed reports whether the trade has been exited.
func (t *Trade) Closed() bool {
	return t.ExitDate != nil && t.ExitPrice != nil
}

// Won reports whether a closed trade exited above its entry price.
func (t *Trade) Won() bool {
	return t.Closed() && *t.ExitPrice > t.EntryPrice
}

// PortfolioState is one snapshot of the simulated portfolio, appended
// once per simulated date. The chronological sequence of states forms
// the equity curve. Cash is never negative.
type PortfolioState struct {
	Date             time.Time `json:"date"`
	Cash             float64   `json:"cash"`
	PositionQty      int       `json:"position_qty"`
	PositionAvgPrice float64   `json:"position_avg_price"`
	Equity           float64   `json:"equity"`
}

// PerformanceReport holds the risk/return statistics derived from a
// completed equity curve and trade log. It is a terminal value, never
// mutated after creation. Degenerate inputs (flat curve, no closed
// trades, no bars) produce sentinel zeros rather than errors.
type PerformanceReport struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	WinRate          float64 `json:"win_rate"`
	TradeCount       int     `json:"trade_count"`
	FinalEquity      float64 `json:"final_equity"`
}
