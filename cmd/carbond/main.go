// Command carbond boots Carbon: it loads configuration, wires the
// Registry, AuthCache, and both front ends, and runs until a drained or
// timed-out shutdown (§5 "Shutdown", §6 "Exit codes").
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chirdeeptomar/carbon-cache/internal/auth"
	"github.com/chirdeeptomar/carbon-cache/internal/config"
	"github.com/chirdeeptomar/carbon-cache/internal/httpapi"
	"github.com/chirdeeptomar/carbon-cache/internal/metrics"
	"github.com/chirdeeptomar/carbon-cache/internal/registry"
	"github.com/chirdeeptomar/carbon-cache/internal/tcpserver"
	"github.com/chirdeeptomar/carbon-cache/pkg/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const (
	exitOK          = 0
	exitDrainFailed = 1
	exitInitFailed  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	log := newLogger()

	fs := pflag.NewFlagSet("carbond", pflag.ContinueOnError)
	config.Flags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Error().Err(err).Msg("carbond: flag parse failed")
		return exitInitFailed
	}
	configFile, _ := fs.GetString("config")

	cfg, err := config.Load(configFile, fs)
	if err != nil {
		log.Error().Err(err).Msg("carbond: config load failed")
		return exitInitFailed
	}
	if cfg.Server.Secret == "" {
		log.Warn().Msg("carbond: CARBON_SERVER_SECRET unset, generating an ephemeral secret for this process")
	}

	reg := registry.New(
		registry.WithOverflowBaseDir(cfg.Overflow.Dir),
		registry.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
		registry.WithLogger(log),
		registry.WithSweepInterval(cfg.SweepInterval),
	)

	store, err := auth.NewStaticStore(cfg.Admin.User, cfg.Admin.Password, auth.DefaultParams)
	if err != nil {
		log.Error().Err(err).Msg("carbond: admin principal setup failed")
		return exitInitFailed
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifyPool := workerpool.New(ctx)
	defer verifyPool.Shutdown()

	authc := auth.New(store, secretOf(cfg.Server.Secret), auth.WithVerifyPool(verifyPool),
		auth.WithIdleTTL(time.Duration(cfg.Session.IdleTTLMillis)*time.Millisecond),
		auth.WithAbsoluteTTL(time.Duration(cfg.Session.AbsoluteTTLMillis)*time.Millisecond),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { authc.Run(gctx, time.Minute); return nil })

	httpSrv := httpapi.New(reg, authc, log,
		httpapi.WithAllowedOrigins(cfg.AllowedOrigins),
		httpapi.WithAdminUIPath(cfg.AdminUIPath),
		httpapi.WithRequestDeadline(cfg.RequestDeadline),
		httpapi.WithAdminUIDir("web/admin"),
	)
	httpAddr := fmt.Sprintf(":%d", cfg.HTTP.Port)

	tcpSrv := tcpserver.New(reg, log, cfg.RequestDeadline)
	tcpAddr := fmt.Sprintf(":%d", cfg.TCP.Port)

	g.Go(func() error {
		log.Info().Str("addr", httpAddr).Msg("carbond: HTTP listening")
		if err := httpSrv.Echo.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", tcpAddr).Msg("carbond: TCP listening")
		return tcpSrv.Serve(gctx, tcpAddr)
	})

	<-ctx.Done()
	log.Info().Msg("carbond: shutdown signal received, draining")

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancel()

	drained := make(chan error, 1)
	go func() {
		err := httpSrv.Echo.Shutdown(drainCtx)
		_ = tcpSrv.Close()
		tcpSrv.Wait()
		drained <- err
	}()

	select {
	case err := <-drained:
		if err != nil {
			log.Error().Err(err).Msg("carbond: drain failed")
			return exitDrainFailed
		}
	case <-drainCtx.Done():
		log.Error().Msg("carbond: drain window exceeded")
		return exitDrainFailed
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("carbond: a server goroutine failed")
		return exitDrainFailed
	}

	log.Info().Msg("carbond: shutdown complete")
	return exitOK
}

func newLogger() zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// secretOf returns the configured HMAC secret, or a per-process random
// fallback so credential fingerprinting is still collision-resistant when
// an operator forgot to set CARBON_SERVER_SECRET (acceptable only because
// sessions do not outlive the process, per §3 "persists for process
// lifetime").
func secretOf(configured string) []byte {
	if configured != "" {
		return []byte(configured)
	}
	return []byte(fmt.Sprintf("carbon-ephemeral-%d", time.Now().UnixNano()))
}
