package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/logger"
	"github.com/iliyamo/taskflow/internal/realtime"
)

var watchOpts struct {
	url      string
	token    string
	channels string
	me       string
	window   time.Duration
}

// watchCmd is a terminal subscriber: events are merged into a local board
// and surfaced as debounced toasts.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow realtime events in the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if watchOpts.token == "" {
			return errors.New("--token is required")
		}
		window := watchOpts.window
		if window <= 0 {
			if cfg, err := loadConfig(); err == nil {
				window = cfg.ToastWindow
			}
		}
		log, err := logger.New("warn")
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		out := cmd.OutOrStdout()
		toaster := realtime.NewToaster(window, func(msg string) {
			fmt.Fprintf(out, "%s  %s\n", time.Now().Format("15:04:05"), msg)
		})
		defer toaster.Stop()
		board := realtime.NewBoard(nil, nil)
		board.OnToast = func(key, msg string) { toaster.Toast(key, msg) }

		channels := splitList(watchOpts.channels)
		if watchOpts.me != "" {
			channels = append(channels, realtime.NotificationChannel(watchOpts.me))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := &realtime.Client{URL: watchOpts.url, Token: watchOpts.token, Channels: channels, Log: log}
		err = client.Run(ctx, func(env realtime.Envelope, ev realtime.Event) {
			board.Apply(ev)
			log.Debug("event", zap.String("channel", env.Channel), zap.String("event", env.Event))
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchOpts.url, "url", "ws://localhost:8080/v1/realtime", "realtime websocket endpoint")
	f.StringVar(&watchOpts.token, "token", "", "bearer token")
	f.StringVar(&watchOpts.channels, "channels", "tasks,projects,members", "comma separated channels")
	f.StringVar(&watchOpts.me, "me", "", "external user id whose notifications to follow")
	f.DurationVar(&watchOpts.window, "window", 0, "toast debounce window (default TOAST_WINDOW)")
}
