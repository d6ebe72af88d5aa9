// Command sponsor-api is the HTTP entrypoint for the sponsor service
// (spec §6): it wires the gas pool, sponsor service and chain client onto
// the /tx/new, /tx/submit and / routes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Apocentre/sui-sponsor/internal/broker"
	"github.com/Apocentre/sui-sponsor/internal/config"
	"github.com/Apocentre/sui-sponsor/internal/gasmeter"
	"github.com/Apocentre/sui-sponsor/internal/gaspool"
	"github.com/Apocentre/sui-sponsor/internal/httpapi"
	"github.com/Apocentre/sui-sponsor/internal/kv"
	"github.com/Apocentre/sui-sponsor/internal/sponsor"
	"github.com/Apocentre/sui-sponsor/internal/suiclient"
	"github.com/Apocentre/sui-sponsor/internal/suilog"
	"github.com/Apocentre/sui-sponsor/internal/wallet"
)

var (
	policyFlag  = &cli.StringFlag{Name: "policy", Usage: "optional TOML file of policy overrides (lease_ttl, sweep_interval, max_gas_budget, gas_payment_minimum, submit_finality)"}
	logFileFlag = &cli.StringFlag{Name: "log-file", Usage: "rotate logs to this path instead of stderr"}
	logJSONFlag = &cli.BoolFlag{Name: "log-json", Usage: "emit logs as JSON instead of text"}
)

func main() {
	app := &cli.App{
		Name:  "sponsor-api",
		Usage: "serves the gas-sponsorship HTTP API",
		Flags: []cli.Flag{policyFlag, logFileFlag, logJSONFlag},
		Action: run,
	}

	// Mirrors the source's panic::set_hook + process::exit(1): a panic
	// anywhere in Action is logged and turned into a non-zero exit rather
	// than a bare stack trace, the way a crashed sponsor process should be
	// visible to whatever supervises it.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sponsor-api: panic", "recover", r)
			os.Exit(1)
		}
	}()

	if err := app.Run(os.Args); err != nil {
		slog.Error("sponsor-api: fatal", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if path := c.String(policyFlag.Name); path != "" {
		overrides, err := config.LoadPolicyOverrides(path)
		if err != nil {
			return fmt.Errorf("load policy overrides: %w", err)
		}
		overrides.Apply(cfg)
	}

	logOpts := []suilog.Option{suilog.WithJSON(c.Bool(logJSONFlag.Name))}
	if path := c.String(logFileFlag.Name); path != "" {
		logOpts = append(logOpts, suilog.WithLogFile(path, 100))
	}
	log := suilog.New(logOpts...)

	store := kv.NewRedisStore(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	defer store.Close()

	br, err := broker.Dial(cfg.RabbitMQURI, time.Duration(cfg.RetryTTLMillis)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer br.Close()

	chain := suiclient.NewChain(suiclient.Dial(cfg.SuiRPC))

	w, err := wallet.FromPrivateKeyHex(cfg.SponsorPrivKey)
	if err != nil {
		return fmt.Errorf("load sponsor wallet: %w", err)
	}

	meter := gasmeter.New(chain)
	pool := gaspool.New(br, store, cfg.LeaseTTL, log)

	admission := sponsor.AdmissionPredicates{
		IsGasBudgetWithinLimits: func(budget uint64) bool { return budget <= cfg.MaxGasBudget },
	}
	sp := sponsor.New(chain, w, meter, pool, cfg.MinCoinBalance, cfg.MaxGasBudget, admission, log)

	handlers := httpapi.NewHandlers(sp, pool, chain, finalityFromConfig(cfg.SubmitFinality), log)
	handler := httpapi.WithCORS(httpapi.NewRouter(handlers), cfg.CORSOrigin)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepLoop(ctx, pool, cfg.SweepInterval, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown", "err", err)
		}
	}()

	log.Info("sponsor-api listening", "port", cfg.Port, "sponsor", w.Address())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// sweepLoop periodically reclaims stalled leases (spec §4.C), the way a
// crashed request_gas caller's lease is returned to the pool instead of
// being lost forever.
func sweepLoop(ctx context.Context, pool *gaspool.Pool, interval time.Duration, log *suilog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := pool.SweepStalled(ctx); n > 0 {
				log.Warn("swept stalled leases", "count", n)
			}
		}
	}
}

func finalityFromConfig(s string) suiclient.Finality {
	if s == "effects_cert" {
		return suiclient.FinalityEffectsCert
	}
	return suiclient.FinalityLocalExecution
}
