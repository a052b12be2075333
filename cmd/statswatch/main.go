// statswatch prints the parking dashboard counters as they change. It keeps
// working from its cache file while the server is unreachable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/pkg/statsclient"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := statsclient.DefaultConfig()
	var baseURL, token, cachePath, logLevel string

	flagSet := pflag.NewFlagSet("statswatch", pflag.ContinueOnError)
	flagSet.StringVar(&baseURL, "url", "http://localhost:8080", "parking API base URL")
	flagSet.StringVar(&token, "token", os.Getenv("PARKING_TOKEN"), "admin bearer token (default $PARKING_TOKEN)")
	flagSet.StringVar(&cachePath, "cache", defaultCachePath(), "snapshot cache file")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level")
	flagSet.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "polling interval when the stream is unavailable")
	flagSet.DurationVar(&cfg.PushRetryInterval, "push-retry", cfg.PushRetryInterval, "how often to retry the stream while polling (0 disables)")
	flagSet.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "stream reconnect attempts before polling")
	flagSet.DurationVar(&cfg.StallTimeout, "stall-timeout", cfg.StallTimeout, "drop the stream after this long without any frame")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		logrus.SetLevel(lvl)
	}

	var last statsclient.State
	cfg.OnChange = func(st statsclient.State, snap *statsclient.Snapshot) {
		if st != last {
			fmt.Printf("%s  status=%s phase=%s attempt=%d\n", time.Now().Format(time.TimeOnly), st.Status(), st.Phase, st.Attempt)
			last = st
		}
		if snap != nil {
			printSnapshot(snap)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := statsclient.New(statsclient.NewHTTPTransport(baseURL, token), statsclient.NewFileCache(cachePath), cfg)
	return client.Run(ctx)
}

func printSnapshot(s *statsclient.Snapshot) {
	fmt.Printf("  tickets %d (available %d, paid %d)  cars %d  confirmations %d  payments pending %d today %d  staff %d\n",
		s.TotalTickets, s.AvailableTickets, s.PaidTickets, s.CarsParked,
		s.PendingConfirmations, s.PendingPayments, s.TodayPayments, s.TotalStaff)
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "parking-statswatch.json")
}
