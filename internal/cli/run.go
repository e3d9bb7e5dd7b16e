package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noobrehan18/OpsPulse/pkg/config"
	"github.com/noobrehan18/OpsPulse/pkg/domain"
	"github.com/noobrehan18/OpsPulse/pkg/pipeline"
	"github.com/noobrehan18/OpsPulse/pkg/queue"
)

var runFlags struct {
	queueURL        string
	inboundSubject  string
	outboundSubject string
	consumerName    string
	windowDuration  string
	allowedLateness string
	shards          int
	drainPolicy     string
	noOutput        bool
	metricsPort     int
	logLevel        string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stream processor",
	Long: `Run the OpsPulse stream processor: consume log records from the
inbound topic, aggregate per-service tumbling windows, and publish
actionable alerts to the outbound topic until interrupted.`,
	RunE: runProcessor,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.queueURL, "queue-url", "", "message queue URL")
	runCmd.Flags().StringVar(&runFlags.inboundSubject, "topic", "", "inbound topic to consume")
	runCmd.Flags().StringVar(&runFlags.outboundSubject, "output-topic", "", "outbound topic for alerts")
	runCmd.Flags().StringVar(&runFlags.consumerName, "group-id", "", "consumer group id (durable consumer name)")
	runCmd.Flags().StringVar(&runFlags.windowDuration, "window-duration", "", "tumbling window size (e.g. 60s)")
	runCmd.Flags().StringVar(&runFlags.allowedLateness, "allowed-lateness", "", "watermark grace period (default 0s)")
	runCmd.Flags().IntVar(&runFlags.shards, "shards", 0, "number of key-hash shards")
	runCmd.Flags().StringVar(&runFlags.drainPolicy, "drain-policy", "", "shutdown drain policy (emit or discard)")
	runCmd.Flags().BoolVar(&runFlags.noOutput, "no-output", false, "disable the alert sink (debug mode)")
	runCmd.Flags().IntVar(&runFlags.metricsPort, "prometheus-port", 0, "port for Prometheus metrics")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// buildConfigs merges environment defaults with flag overrides into the
// immutable configuration values handed to the components
func buildConfigs() (*config.ProcessorConfig, *config.QueueConfig, error) {
	procCfg := config.DefaultProcessorConfig()
	queueCfg := config.DefaultQueueConfig()

	if runFlags.queueURL != "" {
		queueCfg.URL = runFlags.queueURL
	}
	if runFlags.inboundSubject != "" {
		queueCfg.LogsSubject = runFlags.inboundSubject
	}
	if runFlags.outboundSubject != "" {
		queueCfg.AlertsSubject = runFlags.outboundSubject
	}
	if runFlags.consumerName != "" {
		queueCfg.ConsumerName = runFlags.consumerName
	}
	if runFlags.windowDuration != "" {
		d, err := parseDurationFlag("window-duration", runFlags.windowDuration)
		if err != nil {
			return nil, nil, err
		}
		procCfg.WindowDuration = d
	}
	if runFlags.allowedLateness != "" {
		d, err := parseDurationFlag("allowed-lateness", runFlags.allowedLateness)
		if err != nil {
			return nil, nil, err
		}
		procCfg.AllowedLateness = d
	}
	if runFlags.shards > 0 {
		procCfg.Shards = runFlags.shards
	}
	if runFlags.drainPolicy != "" {
		procCfg.DrainPolicy = runFlags.drainPolicy
	}
	if runFlags.noOutput {
		procCfg.SinkEnabled = false
	}
	if runFlags.metricsPort > 0 {
		procCfg.MetricsPort = runFlags.metricsPort
	}
	if runFlags.logLevel != "" {
		procCfg.LogLevel = runFlags.logLevel
	}

	// Configuration errors are the only fatal startup errors
	if err := procCfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid processor configuration: %w", err)
	}
	if err := queueCfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid queue configuration: %w", err)
	}
	return procCfg, queueCfg, nil
}

func runProcessor(cmd *cobra.Command, args []string) error {
	procCfg, queueCfg, err := buildConfigs()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return err
	}

	logger, err := newLogger(procCfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	instr, err := pipeline.NewInstrumentation()
	if err != nil {
		logger.Error("Failed to create instrumentation", zap.Error(err))
		return err
	}

	// Sink initialization failure is unrecoverable at startup
	var sink pipeline.Sink
	var publisher *queue.AlertPublisher
	if procCfg.SinkEnabled {
		publisher, err = queue.NewAlertPublisher(logger, queueCfg)
		if err != nil {
			logger.Error("Failed to initialize alert sink", zap.Error(err))
			return err
		}
		defer publisher.Close()
		sink = publisher
	} else {
		logger.Info("Alert sink disabled, running in debug mode")
	}

	driver, err := pipeline.NewDriver(logger, procCfg, sink, instr)
	if err != nil {
		return err
	}

	if verbose {
		err := driver.Subscribe(func(key domain.WindowKey, alert domain.AlertEvent, emitted bool) {
			logger.Info("🔔 ALERT",
				zap.String("service", alert.Service),
				zap.String("level", string(alert.Level)),
				zap.Int64("logs", alert.LogCount),
				zap.Int64("errors", alert.ErrorCount),
				zap.Int64("anomalies", alert.AnomalyCount),
				zap.Bool("spike", alert.IsSpike))
		})
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := driver.Start(ctx); err != nil {
		return err
	}

	consumer, err := queue.NewConsumer(logger, queueCfg, driver)
	if err != nil {
		logger.Error("Failed to create consumer", zap.Error(err))
		driver.Stop()
		return err
	}

	go serveMetrics(logger, procCfg.MetricsPort)

	logger.Info("OpsPulse processor started",
		zap.String("queue_url", queueCfg.URL),
		zap.String("inbound_subject", queueCfg.LogsSubject),
		zap.String("outbound_subject", queueCfg.AlertsSubject),
		zap.String("consumer_group", queueCfg.ConsumerName),
		zap.Duration("window_duration", procCfg.WindowDuration),
		zap.Bool("sink_enabled", procCfg.SinkEnabled))

	// Blocks until the context is cancelled, then stops itself
	if err := consumer.Start(ctx); err != nil {
		logger.Error("Consumer error", zap.Error(err))
	}

	// Drain in-flight windows per the configured drain policy
	if err := driver.Stop(); err != nil {
		logger.Error("Driver shutdown error", zap.Error(err))
	}

	logger.Info("OpsPulse processor stopped")
	return nil
}

// newLogger builds the zap logger for the configured level
func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// serveMetrics exposes the Prometheus scrape endpoint
func serveMetrics(logger *zap.Logger, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting Prometheus metrics endpoint", zap.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Failed to start metrics server", zap.Error(err))
	}
}

// parseDurationFlag parses a duration flag value
func parseDurationFlag(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s value %q: %w", name, value, err)
	}
	return d, nil
}
