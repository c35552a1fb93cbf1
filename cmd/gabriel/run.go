package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/rcomino/gabriel-messenger/internal/app"
	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/modules/builtin"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

func runCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every configured receiver and sender until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config file on change")
	return cmd
}

func run(ctx context.Context, watch bool) error {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return err
	}
	logs, log := logx.New(app.LogConfig(cfg.Logging))
	defer logs.Close()

	reg := builtin.Registry()
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return app.Check(c, reg) })
	opts := []app.Option{app.WithRegistry(reg), app.WithLogService(logs)}
	if watch {
		opts = append(opts, app.WithConfigManager(cfgm))
	}
	a, err := app.New(cfg, opts...)
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		return err
	}

	// Signals never cancel the task context; they only start the ordered shutdown.
	sigs := make(chan os.Signal, 4)
	// SIGHUP reopens the log file after rotation.
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	if err := a.Start(context.WithoutCancel(ctx)); err != nil {
		log.Error("start failed", logx.Err(err))
		return err
	}
	notify(log, daemon.SdNotifyReady)

	go func() {
		stopping := false
		for {
			select {
			case sig := <-sigs:
				if sig == syscall.SIGHUP {
					logs.Reopen()
					log.Info("log file reopened")
					continue
				}
				if stopping {
					log.Info("shutdown already in progress", logx.String("signal", sig.String()))
					continue
				}
				stopping = true
				log.Info("signal received", logx.String("signal", sig.String()))
				notify(log, daemon.SdNotifyStopping)
				go func() { _ = a.Shutdown(context.Background(), reasonFor(sig)) }()
			case <-a.Done():
				return
			}
		}
	}()

	err = a.Wait(context.Background())
	if err != nil {
		log.Error("stopped with error", logx.Err(err))
	}
	return err
}

func reasonFor(sig os.Signal) app.StopReason {
	switch sig {
	case os.Interrupt:
		return app.StopSIGINT
	case syscall.SIGTERM:
		return app.StopSIGTERM
	default:
		return app.StopUnknown
	}
}

// notify is a no-op outside systemd.
func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
