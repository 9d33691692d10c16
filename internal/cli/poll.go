package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/poll"
)

// NewPollCommand creates the poll command group.
func NewPollCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Inspect and relay registrar poll messages",
	}
	cmd.AddCommand(newPollListCommand(rootOpts))
	cmd.AddCommand(newPollRelayCommand(rootOpts))
	return cmd
}

// PollListOptions holds flags for the poll list command.
type PollListOptions struct {
	*RootOptions
	At string
}

func newPollListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PollListOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           "list <client>",
		Short:         "List the deliverable poll messages of a registrar",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			now, err := opts.instant(opts.At)
			if err != nil {
				return err
			}
			a, err := openApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			msgs, err := a.engine.Messages(cmd.Context(), args[0], now)
			if err != nil {
				return out.RegistryError(err, nil)
			}
			if out.Format == "json" {
				if msgs == nil {
					msgs = []model.PollMessage{}
				}
				return out.Success(msgs)
			}
			lines := make([]string, len(msgs))
			for i, m := range msgs {
				lines[i] = fmt.Sprintf("%s %s %s %s", m.EventTime.Format(time.RFC3339), m.Type, m.Target.Type, m.TargetName)
			}
			return out.Success(strings.Join(lines, "\n"))
		},
	}
	cmd.Flags().StringVar(&opts.At, "at", "", "read instant (RFC 3339, default now)")
	return cmd
}

// PollRelayOptions holds flags for the poll relay command.
type PollRelayOptions struct {
	*RootOptions
	Once     bool
	Interval time.Duration
}

func newPollRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PollRelayOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish deliverable poll messages",
		Long: `Publish deliverable poll messages to the configured Kafka topic and mark
them delivered. Without Kafka brokers, messages are written to stdout as
JSON lines.

Unless --once is given the relay runs every --interval until interrupted
and serves Prometheus metrics on the configured metrics address.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(opts, cmd)
		},
	}
	cmd.Flags().BoolVar(&opts.Once, "once", false, "relay once and exit")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 10*time.Second, "delay between relay runs")
	cmd.Flags().String("metrics-addr", "", "listen address of the metrics endpoint")
	_ = rootOpts.Viper.BindPFlag("metrics_addr", cmd.Flags().Lookup("metrics-addr"))
	return cmd
}

func runRelay(opts *PollRelayOptions, cmd *cobra.Command) error {
	if opts.Interval <= 0 {
		return NewExitError(ExitCommandError, "--interval must be positive")
	}
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	publisher, closePublisher, err := newPublisher(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer closePublisher()

	relayed := promauto.With(a.metrics).NewCounter(prometheus.CounterOpts{
		Name: "registry_poll_relayed_total",
		Help: "Poll messages published and marked delivered.",
	})
	relay := poll.NewRelay(a.store, a.engine.Queue(), publisher, a.log)
	run := func(ctx context.Context) error {
		n, err := relay.RunOnce(ctx, opts.Now().UTC())
		relayed.Add(float64(n))
		if n > 0 {
			a.log.WithField("delivered", n).Info("poll messages relayed")
		}
		return err
	}

	ctx := cmd.Context()
	if opts.Once {
		if err := run(ctx); err != nil {
			return WrapExitError(ExitCommandError, "relay failed", err)
		}
		return nil
	}

	srv := &http.Server{
		Addr:              opts.Config.MetricsAddr,
		Handler:           promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("metrics server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		if err := run(ctx); err != nil {
			a.log.WithError(err).Error("relay run failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func newPublisher(opts *RootOptions, cmd *cobra.Command) (poll.Publisher, func(), error) {
	if len(opts.Config.KafkaBrokers) > 0 {
		kp, err := poll.NewKafkaPublisher(opts.Config.KafkaBrokers, opts.Config.PollTopic)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to connect to kafka", err)
		}
		return kp, kp.Close, nil
	}
	// The relay publishes registrars in parallel.
	var mu sync.Mutex
	enc := json.NewEncoder(cmd.OutOrStdout())
	return poll.PublisherFunc(func(_ context.Context, msg model.PollMessage) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(msg)
	}), func() {}, nil
}
