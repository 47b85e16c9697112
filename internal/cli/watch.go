package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/whole-tale/girder-wt-data-manager/internal/constants"
	"github.com/whole-tale/girder-wt-data-manager/internal/events"
	"github.com/whole-tale/girder-wt-data-manager/internal/logging"
	"github.com/whole-tale/girder-wt-data-manager/internal/metrics"
	"github.com/whole-tale/girder-wt-data-manager/internal/monitor"
	"github.com/whole-tale/girder-wt-data-manager/internal/progress"
	"github.com/whole-tale/girder-wt-data-manager/internal/render"
)

// View names for --view.
const (
	viewTable = "table"
	viewBars  = "bars"
)

type watchOptions struct {
	interval    time.Duration
	once        bool
	placeholder bool
	sessionID   string
	view        string
	metricsAddr string
}

// newWatchCmd creates the 'watch' command.
func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow containers and transfers as they change",
		Long: `Poll the data manager and redraw containers and transfers after every cycle.

Both listings are fetched concurrently. The next cycle starts --interval
after the previous one finished. A failed fetch keeps the last listing on
screen and is retried on the next cycle.

Views:
  table  containers and transfers as tables (default)
  bars   one progress bar per transfer

Examples:
  dmwatch watch
  dmwatch watch --interval 2s --view bars
  dmwatch watch --once --placeholder
  dmwatch watch --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "Delay between poll cycles (default from config, 5s)")
	cmd.Flags().BoolVar(&opts.once, "once", false, "Run a single cycle and exit")
	cmd.Flags().BoolVar(&opts.placeholder, "placeholder", false, "Show a synthetic transfer when the listing does not start with one")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Only follow transfers of this session")
	cmd.Flags().StringVar(&opts.view, "view", viewTable, "Display: table or bars")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func runWatch(cmd *cobra.Command, opts watchOptions) error {
	if opts.view != viewTable && opts.view != viewBars {
		return fmt.Errorf("--view must be %q or %q, got %q", viewTable, viewBars, opts.view)
	}

	client, cfg, err := getAPIClient(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("interval") {
		cfg.PollInterval = opts.interval
	}
	if flags.Changed("placeholder") {
		cfg.Placeholder = opts.placeholder
	}
	if flags.Changed("session") {
		cfg.SessionID = opts.sessionID
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := GetLogger()
	ctx := GetContext()

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	defer bus.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	metrics.RegisterDroppedEvents(reg, bus.DroppedEvents)

	if opts.metricsAddr != "" {
		srv := &http.Server{Addr: opts.metricsAddr, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metrics.Serve(srv, reg); err != nil {
				log.Error().Err(err).Str("addr", opts.metricsAddr).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", opts.metricsAddr).Msg("Serving metrics on /metrics")
	}

	renderer, closeRenderer := newRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, log)
	defer closeRenderer()

	mon := monitor.New(client, renderer, monitor.Options{
		Interval:    cfg.PollInterval,
		Placeholder: cfg.Placeholder,
		SessionID:   cfg.SessionID,
		Bus:         bus,
		Metrics:     m,
		Logger:      log,
	})

	if opts.once {
		_, err := mon.Tick(ctx)
		return err
	}

	// The event logger must finish before the renderer restores the log
	// output, so the bus is closed and drained first.
	logged := make(chan struct{})
	go func() {
		defer close(logged)
		logEvents(bus.SubscribeAll(), log)
	}()
	defer func() {
		bus.Close()
		<-logged
	}()

	if err := mon.Start(ctx); err != nil {
		return err
	}
	<-mon.Done()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newRenderer builds the requested view and its cleanup. While bars are
// drawn, log lines are printed above them.
func newRenderer(out, errOut io.Writer, opts watchOptions, log *logging.Logger) (monitor.Renderer, func()) {
	if opts.view == viewBars {
		f, ok := out.(*os.File)
		if !ok {
			f = os.Stdout
		}
		ui := progress.NewMonitorUI(f)
		if !ui.IsTerminal() {
			return ui, ui.Close
		}
		log.SetOutput(ui.Writer())
		return ui, func() {
			ui.Close()
			log.SetOutput(errOut)
		}
	}
	return render.NewTable(out, isTerminal(out) && !opts.once), func() {}
}

// logEvents writes bus traffic to the debug log until the bus closes.
func logEvents(ch <-chan events.Event, log *logging.Logger) {
	for ev := range ch {
		switch e := ev.(type) {
		case *events.StateChangeEvent:
			log.Debug().Str("from", e.OldState).Str("to", e.NewState).Msg("Monitor state changed")
		case *events.RefreshFailedEvent:
			log.Debug().Str("collection", e.Collection).Err(e.Error).Msg("Refresh failed, keeping previous records")
		case *events.CollectionChangedEvent:
			log.Debug().Str("collection", e.Collection).Int("count", e.Count).Uint64("generation", e.Generation).Msg("Collection replaced")
		case *events.TickEvent:
			log.Debug().Uint64("generation", e.Generation).Int("errors", e.Errors).Dur("elapsed", e.Duration).Msg("Tick")
		}
	}
}
