package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vcamd/vcamd/internal/config"
	"github.com/vcamd/vcamd/internal/control"
	"github.com/vcamd/vcamd/internal/framechan"
	"github.com/vcamd/vcamd/internal/metrics"
	"github.com/vcamd/vcamd/internal/scheduler"
	"github.com/vcamd/vcamd/internal/sink"
	"github.com/vcamd/vcamd/internal/supervisor"
	"github.com/vcamd/vcamd/pkg/logging"
	"github.com/vcamd/vcamd/pkg/shutdown"
)

var (
	startProducer bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the frame relay daemon",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&startProducer, "start-producer", false, "launch the producer immediately")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.NewFileLogger("vcamd", logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Close()

	m := metrics.New()

	sup := supervisor.New(cfg.Supervisor, logger.WithField("component", "supervisor"), m)

	channel := framechan.New(cfg.Stream.RegionPath, logger.WithField("component", "framechan"))

	frameSink, closeSink, err := buildSink(cfg.Stream)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Config{
		FrameInterval:     cfg.Stream.FrameInterval(),
		PlaceholderWidth:  cfg.Stream.PlaceholderWidth,
		PlaceholderHeight: cfg.Stream.PlaceholderHeight,
	}, channel, frameSink, logger.WithField("component", "scheduler"), m)

	ctl := control.New(sup, sched, m, cfg.Producer, logger.WithField("component", "control"))

	mgr := shutdown.New(15 * time.Second)
	mgr.Register(func(ctx context.Context) error { return ctl.Shutdown(ctx) })
	mgr.Register(func(ctx context.Context) error {
		sched.StopStream()
		return nil
	})
	mgr.Register(func(ctx context.Context) error {
		if err := sup.Stop(); err != nil {
			return nil // nothing running
		}
		// Bounded by the escalation policy; poll for the exit.
		deadline := time.After(cfg.Supervisor.GracefulTimeout + cfg.Supervisor.ForcedTimeout + time.Second)
		for sup.State().IsStopping() {
			select {
			case <-deadline:
				return fmt.Errorf("producer did not stop in time")
			case <-time.After(50 * time.Millisecond):
			}
		}
		return nil
	})
	if closeSink != nil {
		mgr.Register(shutdown.CloseResource(closeSink, "frame sink"))
	}

	if startProducer || cfg.Stream.AutoStart {
		if startProducer {
			if err := sup.Start(cfg.Producer); err != nil {
				logger.Error("producer start failed", map[string]interface{}{"error": err.Error()})
			}
		}
		if err := sched.StartStream(); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctl.ListenAndServe(cfg.Control.ListenAddr)
	}()

	ctx := cmd.Context()
	go func() {
		if err := <-errCh; err != nil {
			logger.Fatal("control server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	return mgr.WaitWithContext(ctx)
}

func buildSink(cfg config.StreamConfig) (scheduler.Sink, interface{ Close() error }, error) {
	switch cfg.SinkType {
	case "pipe":
		p := sink.NewPipe(cfg.SinkPath)
		return p, p, nil
	default:
		return sink.NewNull(), nil, nil
	}
}
