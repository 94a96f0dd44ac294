package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arbiscan/arbiscan/internal/collector"
	"github.com/arbiscan/arbiscan/internal/config"
	"github.com/arbiscan/arbiscan/internal/dashboard"
	"github.com/arbiscan/arbiscan/internal/detect"
	"github.com/arbiscan/arbiscan/internal/domain"
	"github.com/arbiscan/arbiscan/internal/errs"
	"github.com/arbiscan/arbiscan/internal/exchange"
	"github.com/arbiscan/arbiscan/internal/fx"
	"github.com/arbiscan/arbiscan/internal/notify"
	"github.com/arbiscan/arbiscan/internal/store"
	"github.com/arbiscan/arbiscan/internal/store/cache"
)

// stack is the assembled runtime shared by the long-running commands.
type stack struct {
	cfg     *config.File
	store   *store.Store
	fx      *fx.Service
	clients map[string]exchange.Client
	mirror  *cache.LatestQuoteCache
}

func buildStack(ctx context.Context) (*stack, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, os.Getenv(config.EnvDatabaseURL))
	if err != nil {
		return nil, err
	}
	st.SetEcho(os.Getenv(config.EnvSQLEcho) == "true")

	fxSvc := fx.NewService()
	clients, err := exchange.Build(cfg, fxSvc)
	if err != nil {
		st.Close()
		return nil, err
	}

	s := &stack{cfg: cfg, store: st, fx: fxSvc, clients: clients}

	if url := os.Getenv(config.EnvRedisURL); url != "" {
		mirror, err := cache.Open(ctx, url)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, hot-quote mirror disabled")
		} else {
			s.mirror = mirror
		}
	}
	return s, nil
}

// seedMasters upserts venue and pair master rows from the configuration.
func (s *stack) seedMasters(ctx context.Context) error {
	for code, venue := range s.cfg.Exchanges {
		if _, err := s.store.UpsertExchange(ctx, exchange.VenueMaster(code, venue)); err != nil {
			return err
		}
	}
	for _, client := range s.clients {
		for _, symbol := range client.SupportedPairs() {
			if _, err := s.store.EnsurePair(ctx, symbol); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *stack) gate() *notify.Gate {
	tz := time.FixedZone("JST", 9*60*60)
	if name := os.Getenv(config.EnvTimezone); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			tz = loc
		}
	}
	webhook := notify.NewWebhook(os.Getenv(config.EnvDiscordWebhook))
	return notify.NewGate(notify.NewPolicyStore(flagPolicy), webhook, tz).
		WithRecorder(s.store)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newCollectCmd() *cobra.Command {
	var useWS bool
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the collection scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			s, err := buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.store.Close()

			if err := s.seedMasters(ctx); err != nil {
				return err
			}

			opts := []collector.Option{}
			if s.mirror != nil {
				opts = append(opts, collector.WithMirror(s.mirror))
			}
			coll := collector.New(s.clients, s.store, opts...)
			if err := coll.Start(ctx); err != nil {
				return err
			}

			if useWS {
				if bf, ok := s.clients["bitflyer"].(*exchange.Bitflyer); ok {
					feed := make(chan domain.Quote, 64)
					go func() {
						if err := bf.StreamTicker(ctx, bf.SupportedPairs(), feed); err != nil && ctx.Err() == nil {
							log.Error().Err(err).Msg("bitflyer stream ended")
						}
						close(feed)
					}()
					go coll.RunStream(ctx, feed)
				} else {
					log.Warn().Msg("--ws requested but bitflyer is not enabled")
				}
			}

			<-ctx.Done()
			coll.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&useWS, "ws", false, "also stream bitFlyer tickers over websocket")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the detection engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			s, err := buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.store.Close()

			engine := detect.New(s.store, s.gate())
			if err := engine.Run(ctx, interval); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", detect.DefaultInterval, "detection cadence")
	return cmd
}

func newDashboardCmd() *cobra.Command {
	var listen string
	var once bool
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the read-only monitoring surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			s, err := buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.store.Close()

			if once || (dashboard.IsTerminal() && !cmd.Flags().Changed("listen")) {
				return dashboard.RenderTerminal(ctx, s.store, os.Stdout)
			}
			err = dashboard.NewServer(s.store).ListenAndServe(ctx, listen)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8080", "HTTP listen address")
	cmd.Flags().BoolVar(&once, "once", false, "print one terminal snapshot and exit")
	return cmd
}

func newSetupDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup-db",
		Short: "Provision the database schema and seed master rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			s, err := buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.store.Close()

			if err := s.store.Setup(ctx); err != nil {
				return err
			}
			if err := s.seedMasters(ctx); err != nil {
				return err
			}
			log.Info().Msg("schema provisioned")
			return nil
		},
	}
}

func newTestConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Smoke-test the store, venues, FX sources and webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			s, err := buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.store.Close()

			if err := s.store.Ping(ctx); err != nil {
				return err
			}
			fmt.Println("store: ok")

			rate := s.fx.GetRate(ctx, fx.USDJPY)
			fmt.Printf("fx: USD/JPY %s\n", rate.String())

			probeErr := probeVenues(ctx, s.clients, os.Stdout)

			if os.Getenv(config.EnvDiscordWebhook) == "" {
				fmt.Println("webhook: not configured")
			} else {
				fmt.Println("webhook: configured")
			}
			return probeErr
		},
	}
}

// probeVenues hits one public endpoint per venue. Any failure makes the
// whole probe transient so the command exits nonzero.
func probeVenues(ctx context.Context, clients map[string]exchange.Client, out io.Writer) error {
	var failed []string
	for code, client := range clients {
		pairs := client.SupportedPairs()
		if len(pairs) == 0 {
			fmt.Fprintf(out, "%s: no configured pairs\n", code)
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := client.Quotes(callCtx, pairs[0])
		cancel()
		if err != nil {
			fmt.Fprintf(out, "%s: FAILED (%v)\n", code, err)
			failed = append(failed, code)
			continue
		}
		fmt.Fprintf(out, "%s: ok\n", code)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: venue probes failed: %s", errs.ErrTransientNetwork, strings.Join(failed, ", "))
	}
	return nil
}
