package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/legendaryobs/crystal"
	"github.com/legendaryobs/crystal/fx/crystalfx"
	"github.com/legendaryobs/crystal/reward"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the efficiency monitor until interrupted",
	Long: `Open the store and sample its efficiency on a fixed interval, granting
achievements as thresholds are crossed. With --metrics-addr, Prometheus
metrics are served on /metrics and a health check on /healthz.

The configured snapshot is restored on start and saved on shutdown when
snapshot.restore_on_start and snapshot.save_on_stop are set.

Examples:
  crystal monitor
  crystal monitor --metrics-addr :9090 --config crystal.yaml`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

var metricsAddr string

func init() {
	monitorCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics and /healthz on")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Monitor.Enabled = true

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	var (
		s    *crystal.Store
		gate *reward.Gate
	)
	app := fx.New(
		fx.Supply(*cfg, log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		crystalfx.Module,
		fx.Populate(&s, &gate),
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("building service: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	var srv *http.Server
	if metricsAddr != "" {
		srv = newMetricsServer(metricsAddr, s)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
				stop()
			}
		}()
		log.Info("serving metrics", zap.String("addr", metricsAddr))
	}

	<-ctx.Done()
	log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()

	var errs []error
	if srv != nil {
		errs = append(errs, srv.Shutdown(stopCtx))
	}
	errs = append(errs, app.Stop(stopCtx))

	printMonitorSummary(cmd, s, gate)
	return errors.Join(errs...)
}

func newMetricsServer(addr string, s *crystal.Store) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		eff := s.ComputeSystemEfficiency()
		if !crystal.Healthy(eff) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(w, "efficiency %.1f (%s)\n", eff, crystal.GradeOf(eff))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func printMonitorSummary(cmd *cobra.Command, s *crystal.Store, gate *reward.Gate) {
	out := cmd.OutOrStdout()
	trend := s.Trend()
	fmt.Fprintf(out, "Samples:      %d\n", trend.Samples)
	if trend.Samples > 0 {
		fmt.Fprintf(out, "Efficiency:   %.1f mean, %.1f-%.1f range\n", trend.Mean, trend.Min, trend.Max)
	}
	fmt.Fprintf(out, "Achievements: %d\n", gate.Fired())
	fmt.Fprintf(out, "Balance:      %d\n", gate.Balance())
	for _, a := range gate.Recent(5) {
		fmt.Fprintf(out, "  %s  %-20s +%d\n", a.Time.Format(time.RFC3339), a.Title, a.Reward)
	}
}
