// Package cycle implements the sync command, which runs sync cycles for one
// integration either once or on an interval.
package cycle

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/syncbridge/cmd/application"
	"github.com/agentstation/syncbridge/internal/output"
	"github.com/agentstation/syncbridge/pkg/constants"
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/manual"
	"github.com/agentstation/syncbridge/pkg/report"
	"github.com/agentstation/syncbridge/pkg/syncprocess"
)

// Flags holds the sync command flags.
type Flags struct {
	Manual      string
	Report      string
	FirstSync   bool
	HandlerKey  string
	Interval    time.Duration
	MetricsAddr string
}

// NewCommand creates the sync command.
func NewCommand(app application.Application) *cobra.Command {
	flags := &Flags{}
	cmd := &cobra.Command{
		Use:     "sync",
		GroupID: "core",
		Short:   "Sync an integration report into the internal store",
		Long: `Sync resolves every object of an integration report against the
internal objects, applies the winning field values and records the
identity links between both sides.

Objects that cannot be synced are reported through the configured
notification handler.`,
		Example: `  syncbridge sync --manual hubspot.yaml --report changes.yaml
  syncbridge sync --manual hubspot.yaml --report changes.yaml --interval 5m --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, app, flags)
		},
	}
	cmd.Flags().StringVar(&flags.Manual, "manual", "", "field mapping manual (YAML)")
	cmd.Flags().StringVar(&flags.Report, "report", "", "integration report (YAML or JSON)")
	cmd.Flags().BoolVar(&flags.FirstSync, "first-sync", false, "mark the order as the first sync of the integration")
	cmd.Flags().StringVar(&flags.HandlerKey, "handler-key", constants.InternalIntegration, "notification handler key")
	cmd.Flags().DurationVar(&flags.Interval, "interval", 0, "repeat the cycle on this interval until interrupted")
	cmd.Flags().StringVar(&flags.MetricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")
	_ = cmd.MarkFlagRequired("manual")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func run(cmd *cobra.Command, app application.Application, flags *Flags) error {
	ctx := cmd.Context()
	logger := app.Logger()

	if flags.Interval < 0 {
		return errors.NewValidationError("interval", flags.Interval, "cannot be negative")
	}
	m, err := manual.Load(flags.Manual)
	if err != nil {
		return err
	}
	process, err := app.Process(ctx)
	if err != nil {
		return err
	}
	if process == nil {
		return &errors.ConfigError{Component: "sync", Message: "no sync process configured"}
	}

	if flags.MetricsAddr != "" {
		srv := NewServer(flags.MetricsAddr, app.Health)
		stop := Serve(ctx, srv, logger)
		defer stop()
	}

	opts := []syncprocess.Option{
		syncprocess.WithFirstSync(flags.FirstSync),
		syncprocess.WithHandlerKey(flags.HandlerKey),
		syncprocess.WithLogger(logger),
	}

	if flags.Interval == 0 {
		result, err := once(ctx, process, m, flags.Report, opts)
		if err != nil {
			return err
		}
		format := output.DetectFormat(app.OutputFormat())
		return output.NewFormatter(format).Format(cmd.OutOrStdout(), NewSummary(result))
	}

	logger.Info().Str("integration", m.Integration).Dur("interval", flags.Interval).Msg("scheduled sync started")
	ticker := time.NewTicker(flags.Interval)
	defer ticker.Stop()
	for {
		// The first sync flag only applies to the first cycle.
		if _, err := once(ctx, process, m, flags.Report, opts); err != nil {
			logger.Error().Err(err).Str("integration", m.Integration).Msg("sync cycle failed")
		}
		opts[0] = syncprocess.WithFirstSync(false)

		select {
		case <-ctx.Done():
			logger.Info().Str("integration", m.Integration).Msg("scheduled sync stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// once reloads the report and runs a single cycle.
func once(ctx context.Context, process *syncprocess.Process, m *manual.Manual, reportPath string, opts []syncprocess.Option) (*syncprocess.Result, error) {
	r, err := report.Load(reportPath)
	if err != nil {
		return nil, err
	}
	if r.Integration() != m.Integration {
		return nil, errors.NewValidationError("report", r.Integration(), "integration does not match manual "+m.Integration)
	}
	ctx, cancel := context.WithTimeout(ctx, constants.SyncTimeout)
	defer cancel()
	return process.Run(ctx, m, r, opts...)
}

// Summary is the printed result of a cycle.
type Summary struct {
	CycleID   string `json:"cycle_id" yaml:"cycle_id"`
	OrderID   string `json:"order_id" yaml:"order_id"`
	Processed int    `json:"processed" yaml:"processed"`
	Skipped   int    `json:"skipped" yaml:"skipped"`
	Updated   int    `json:"updated" yaml:"updated"`
	Created   int    `json:"created" yaml:"created"`
	Notified  int    `json:"notified" yaml:"notified"`
	Duration  string `json:"duration" yaml:"duration"`
}

// NewSummary converts a cycle result.
func NewSummary(r *syncprocess.Result) Summary {
	return Summary{
		CycleID:   r.CycleID,
		OrderID:   r.OrderID,
		Processed: r.Processed,
		Skipped:   r.Skipped,
		Updated:   r.Updated,
		Created:   r.Created,
		Notified:  r.Notified,
		Duration:  r.Duration.Round(time.Millisecond).String(),
	}
}

// Table implements output.Tabular.
func (s Summary) Table() output.Data {
	return output.Data{
		Headers: []string{"Processed", "Skipped", "Updated", "Created", "Notified", "Duration"},
		Rows: [][]string{{
			strconv.Itoa(s.Processed),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Updated),
			strconv.Itoa(s.Created),
			strconv.Itoa(s.Notified),
			s.Duration,
		}},
	}
}
