package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/umctl/internal/config"
	"codeberg.org/mutker/umctl/internal/display"
	"codeberg.org/mutker/umctl/internal/errors"
	"codeberg.org/mutker/umctl/internal/logger"
	"codeberg.org/mutker/umctl/internal/meter"
	"codeberg.org/mutker/umctl/internal/pid"
	"codeberg.org/mutker/umctl/internal/recorder"
	"codeberg.org/mutker/umctl/internal/transport/ble"
	"codeberg.org/mutker/umctl/internal/transport/serial"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Connect to a meter and show live readings (default)",
	RunE:  runMonitor,
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		return err
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(cfg.GetDevice()); err != nil {
		logError(err, "Failed to claim device")
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.GetDevice()); err != nil {
			logError(err, "Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(ctx, cancel)

	collector, err := recorder.NewService(cfg.RecorderConfig(), logger.New().With("recorder"))
	if err != nil {
		logError(err, "Failed to initialize recorder")
		return err
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logError(err, "Failed to close recorder")
		}
	}()

	observers := meter.Observers{display.NewConsole(cmd.OutOrStdout())}
	if cfg.IsRecordEnabled() {
		observers = append(observers, recorder.NewObserver(ctx, collector, logger.New().With("recorder")))
	}

	session := meter.NewSession(newTransport(cfg),
		meter.WithObserver(observers),
		meter.WithPollInterval(cfg.GetInterval()),
		meter.WithLogger(logger.New().With("session")),
	)

	logger.Info().
		Str("transport", cfg.GetTransport()).
		Str("device", cfg.GetDevice()).
		Dur("interval", cfg.GetInterval()).
		Msg("Starting session")

	if err := session.Run(ctx); err != nil {
		logError(errors.New().Wrap(errors.ErrMainLoop, err), "Session ended")
		return err
	}

	logger.Info().
		Uint64("frames", session.Frames()).
		Uint64("dropped", session.Dropped()).
		Msg("Exiting...")

	return nil
}

func newTransport(cfg config.Provider) meter.Transport {
	log := logger.New().With("transport")

	if cfg.GetTransport() == config.TransportSerial {
		return serial.New(serial.Config{
			Port:     cfg.GetDevice(),
			BaudRate: cfg.GetBaudRate(),
		}, log)
	}

	return ble.New(ble.Config{
		Device:         cfg.GetDevice(),
		ConnectTimeout: cfg.GetConnectTimeout(),
	}, log)
}

func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal.")
		cancel()
	case <-ctx.Done():
	}
}

func logError(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}
