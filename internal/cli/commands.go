package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stockml-engine/internal/backtest"
	"stockml-engine/internal/forecast"
	"stockml-engine/internal/server"
	"stockml-engine/internal/store"
	"stockml-engine/internal/validate"
	"stockml-engine/pkg/utils"
)

func newBacktestCmd(app *App) *cobra.Command {
	var (
		startStr   string
		endStr     string
		cash       float64
		commission float64
		threshold  float64
	)

	cmd := &cobra.Command{
		Use:   "backtest SYMBOL [SYMBOL...]",
		Short: "Backtest frozen models over stored history",
		Long: `Replay each symbol's frozen model over stored bars in a date window,
simulate the resulting signals against a buy-and-hold baseline, and
report performance for both strategies.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			start, err := utils.ParseDate(startStr)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			end, err := utils.ParseDate(endStr)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			cfg := backtest.RunConfig{
				Start:      start,
				End:        end,
				Cash:       cash,
				Commission: commission,
				Threshold:  threshold,
			}

			if len(args) == 1 {
				cfg.Instrument = args[0]
				result, err := app.Engine.Run(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(result)
				}
				printBacktestResult(output, result)
				return nil
			}

			batch, err := app.Engine.RunBatch(cmd.Context(), args, cfg)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(batch)
			}
			printBatchResult(output, batch)
			return nil
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "", "window start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "window end date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&cash, "cash", 0, "initial cash (default from config)")
	cmd.Flags().Float64Var(&commission, "commission", -1, "commission rate per side (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "signal probability threshold (default from config)")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")

	return cmd
}

func printBacktestResult(output *Output, result *backtest.InstrumentResult) {
	output.Bold("Backtest: %s", result.Instrument)
	output.Printf("  Window:  %s to %s (%d bars)\n",
		utils.FormatDate(result.Data.Start), utils.FormatDate(result.Data.End), result.Data.BarCount)

	if result.InsufficientData {
		output.Warning("  Insufficient data, nothing simulated")
		return
	}

	output.Printf("  Signals: %d buy / %d sell / %d hold\n",
		result.Data.Signals.Buy, result.Data.Signals.Sell, result.Data.Signals.Hold)
	output.Println()

	table := NewTable(output, "Strategy", "Return", "Annualized", "Drawdown", "Sharpe", "Win Rate", "Trades")
	table.AddRow("ML model",
		output.FormatReturn(result.MLStrategy.Report.TotalReturn),
		output.FormatReturn(result.MLStrategy.Report.AnnualizedReturn),
		utils.FormatPercent(result.MLStrategy.Report.MaxDrawdown),
		utils.FormatRatio(result.MLStrategy.Report.SharpeRatio),
		utils.FormatPercent(result.MLStrategy.Report.WinRate),
		fmt.Sprintf("%d", result.MLStrategy.Report.TradeCount))
	table.AddRow("Buy & hold",
		output.FormatReturn(result.Baseline.Report.TotalReturn),
		output.FormatReturn(result.Baseline.Report.AnnualizedReturn),
		utils.FormatPercent(result.Baseline.Report.MaxDrawdown),
		utils.FormatRatio(result.Baseline.Report.SharpeRatio),
		utils.FormatPercent(result.Baseline.Report.WinRate),
		fmt.Sprintf("%d", result.Baseline.Report.TradeCount))
	table.Render()

	output.Println()
	output.Printf("  Final equity:  %s\n", utils.FormatCurrency(result.MLStrategy.Report.FinalEquity))
	output.Printf("  Excess return: %s\n", output.FormatReturn(result.ExcessReturn()))
}

func printBatchResult(output *Output, batch *backtest.BatchResult) {
	table := NewTable(output, "Symbol", "ML Return", "Baseline", "Excess", "Trades")
	for symbol, result := range batch.Results {
		table.AddRow(symbol,
			output.FormatReturn(result.MLStrategy.Report.TotalReturn),
			output.FormatReturn(result.Baseline.Report.TotalReturn),
			output.FormatReturn(result.ExcessReturn()),
			fmt.Sprintf("%d", result.MLStrategy.Report.TradeCount))
	}
	table.Render()

	for symbol, msg := range batch.Errors {
		output.Error("  %s: %s", symbol, msg)
	}
	output.Println()
	output.Printf("Succeeded: %d, failed: %d\n", batch.Succeeded, batch.Failed)
	if s := batch.Summary; s != nil {
		output.Printf("Excess vs baseline: mean %s, std %.2f%%, %d ahead / %d behind\n",
			output.FormatReturn(s.MeanExcess), s.StdExcess*100, s.Outperformed, s.Underperformed)
	}
}

func newValidateCmd(app *App) *cobra.Command {
	var startStr, endStr string

	cmd := &cobra.Command{
		Use:   "validate SYMBOL [SYMBOL...]",
		Short: "Validate models on out-of-sample history",
		Long: `Score each symbol's frozen model on bars strictly after its training
cutoff. Windows overlapping the training period are rejected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			var start, end time.Time
			var err error
			if startStr != "" {
				if start, err = utils.ParseDate(startStr); err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
			}
			if endStr != "" {
				if end, err = utils.ParseDate(endStr); err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
			}

			if len(args) == 1 {
				record, err := app.Validator.Run(cmd.Context(), validate.RunConfig{
					Instrument: args[0],
					Start:      start,
					End:        end,
				})
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(record)
				}
				printValidationRecord(output, record)
				return nil
			}

			records := app.Validator.RunBatch(cmd.Context(), args, validate.RunConfig{
				Start: start,
				End:   end,
			})
			if output.IsJSON() {
				return output.JSON(records)
			}
			for _, symbol := range args {
				printValidationRecord(output, records[symbol])
				output.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "", "validation start (default: day after training cutoff)")
	cmd.Flags().StringVar(&endStr, "end", "", "validation end (default: latest stored bar)")

	return cmd
}

func printValidationRecord(output *Output, record *validate.Record) {
	output.Bold("Validation: %s", record.Instrument)
	if !record.Success {
		output.Error("  Failed: %s", record.Error)
		return
	}
	if record.InsufficientData {
		output.Warning("  No out-of-sample data after training cutoff %s",
			utils.FormatDate(record.TrainingCutoff))
		return
	}

	output.Printf("  Period:  %s to %s\n",
		utils.FormatDate(record.ValidationPeriod.Start), utils.FormatDate(record.ValidationPeriod.End))
	output.Printf("  Samples: %d\n", record.Samples)
	output.Printf("  Signals: %d buy / %d sell / %d hold\n",
		record.Signals.Buy, record.Signals.Sell, record.Signals.Hold)
	output.Printf("  Return:  %s (baseline %s)\n",
		output.FormatReturn(record.Report.TotalReturn),
		output.FormatReturn(record.Baseline.TotalReturn))
	output.Printf("  Sharpe:  %s, win rate %s over %d trades\n",
		utils.FormatRatio(record.Report.SharpeRatio),
		utils.FormatPercent(record.Report.WinRate),
		record.Report.TradeCount)
}

func newPredictCmd(app *App) *cobra.Command {
	var (
		days       int
		confidence float64
	)

	cmd := &cobra.Command{
		Use:   "predict SYMBOL [SYMBOL...]",
		Short: "Project signals for the next trading days",
		Long: `Roll each symbol's frozen model forward from its latest stored
features. Projections feed synthetic features back into the model, so
the horizon is capped at a few days.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			horizon := days
			if horizon == 0 {
				horizon = app.Config.Engine.MaxHorizonDays
			}

			if len(args) == 1 {
				fc, err := app.Projector.Project(cmd.Context(), args[0], horizon, confidence)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(fc)
				}
				printForecast(output, fc)
				return nil
			}

			forecasts, errors, err := app.Projector.ProjectBatch(cmd.Context(), args, horizon, confidence)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"forecasts": forecasts, "errors": errors})
			}
			for _, symbol := range args {
				if msg, failed := errors[symbol]; failed {
					output.Error("%s: %s", symbol, msg)
					continue
				}
				printForecast(output, forecasts[symbol])
				output.Println()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "forecast horizon in trading days (default from config)")
	cmd.Flags().Float64Var(&confidence, "confidence", -1, "flag projections below this confidence (default from config)")

	return cmd
}

func printForecast(output *Output, fc *forecast.Forecast) {
	output.Bold("Forecast: %s (from %s)", fc.Instrument, utils.FormatDate(fc.BaseDate))
	table := NewTable(output, "Date", "Action", "Prob Up", "Confidence", "Note")
	for _, day := range fc.Days {
		note := ""
		if day.LowConfidence {
			note = output.Yellow("low confidence")
		}
		table.AddRow(utils.FormatDate(day.Date),
			output.FormatAction(day.Action),
			fmt.Sprintf("%.3f", day.ProbUp),
			utils.FormatPercent(day.Confidence),
			note)
	}
	table.Render()
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored data and model availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			instruments, err := app.Store.ListInstruments(ctx)
			if err != nil {
				return err
			}

			type instrumentStatus struct {
				Data  *store.InstrumentStatus `json:"data"`
				Model interface{}             `json:"model"`
			}

			statuses := make(map[string]instrumentStatus, len(instruments))
			for _, instrument := range instruments {
				data, err := app.Store.InstrumentStatus(ctx, instrument)
				if err != nil {
					return err
				}
				statuses[instrument] = instrumentStatus{
					Data:  data,
					Model: app.Registry.StatusFor(instrument),
				}
			}

			if output.IsJSON() {
				return output.JSON(statuses)
			}

			if len(instruments) == 0 {
				output.Warning("No instruments stored")
				return nil
			}

			table := NewTable(output, "Symbol", "Bars", "Features", "First", "Last", "Model")
			for _, instrument := range instruments {
				s := statuses[instrument]
				modelCell := output.Red("missing")
				if app.Registry.StatusFor(instrument).Available {
					modelCell = output.Green("ready")
				}
				first, last := "", ""
				if !s.Data.FirstDate.IsZero() {
					first = utils.FormatDate(s.Data.FirstDate)
					last = utils.FormatDate(s.Data.LastDate)
				}
				table.AddRow(instrument,
					fmt.Sprintf("%d", s.Data.BarCount),
					fmt.Sprintf("%d", s.Data.FeatureCount),
					first, last, modelCell)
			}
			table.Render()
			return nil
		},
	}
}

func newReportsCmd(app *App) *cobra.Command {
	var (
		instrument string
		kind       string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List persisted run reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			records, err := app.Store.GetReports(cmd.Context(), instrument, store.RunKind(kind), limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(records)
			}

			if len(records) == 0 {
				output.Warning("No reports found")
				return nil
			}

			table := NewTable(output, "ID", "Symbol", "Kind", "Created")
			for _, r := range records {
				table.AddRow(fmt.Sprintf("%d", r.ID), r.Instrument, string(r.Kind),
					r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&instrument, "symbol", "", "filter by symbol")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind (backtest, validation, forecast)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum reports to list")

	return cmd
}

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serve the engine over HTTP. Backtests, validations and forecasts are
exposed as JSON endpoints under /api. The server shuts down gracefully
on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = app.Config.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(addr, app.Store, app.Registry, app.Engine,
				app.Validator, app.Projector, app.Config.Engine, app.Logger)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")

	return cmd
}
