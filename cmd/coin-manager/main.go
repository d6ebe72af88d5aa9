// Command coin-manager runs the rebalance loop that keeps the gas pool
// supplied with fresh coins (spec §4.G): it merges the sponsor's dust coins
// into a master coin, splits it back into pool-sized coins, and reconciles
// pool membership against chain state on a longer cadence.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Apocentre/sui-sponsor/internal/broker"
	"github.com/Apocentre/sui-sponsor/internal/coinmanager"
	"github.com/Apocentre/sui-sponsor/internal/config"
	"github.com/Apocentre/sui-sponsor/internal/distlock"
	"github.com/Apocentre/sui-sponsor/internal/gasmeter"
	"github.com/Apocentre/sui-sponsor/internal/gaspool"
	"github.com/Apocentre/sui-sponsor/internal/kv"
	"github.com/Apocentre/sui-sponsor/internal/suiclient"
	"github.com/Apocentre/sui-sponsor/internal/suilog"
	"github.com/Apocentre/sui-sponsor/internal/wallet"
)

var (
	policyFlag  = &cli.StringFlag{Name: "policy", Usage: "optional TOML file of policy overrides"}
	logFileFlag = &cli.StringFlag{Name: "log-file", Usage: "rotate logs to this path instead of stderr"}
	logJSONFlag = &cli.BoolFlag{Name: "log-json", Usage: "emit logs as JSON instead of text"}
)

func main() {
	app := &cli.App{
		Name:   "coin-manager",
		Usage:  "keeps the gas pool supplied with fresh sponsor coins",
		Flags:  []cli.Flag{policyFlag, logFileFlag, logJSONFlag},
		Action: run,
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("coin-manager: panic", "recover", r)
			os.Exit(1)
		}
	}()

	if err := app.Run(os.Args); err != nil {
		slog.Error("coin-manager: fatal", "err", err)
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

	lock := distlock.NewRedsyncLocker([]string{fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)}, cfg.RedisPassword)

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
	producer := broker.NewCoinObjectProducer(br)

	mgr := coinmanager.New(chain, w, meter, store, lock, pool, producer, coinmanager.Config{
		SponsorAddr:       w.Address(),
		MaxPoolCapacity:   cfg.MaxPoolCapacity,
		MinPoolCount:      cfg.MinPoolCount,
		CoinBalance:       cfg.CoinBalanceDeposit,
		GasPaymentMinimum: cfg.GasPaymentMinimum,
		MasterLockTTL:     cfg.MasterLockTTL,
		Finality:          finalityFromConfig(cfg.SubmitFinality),
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reconcileLoop(ctx, mgr, cfg.SweepInterval, log)

	log.Info("coin-manager running", "sponsor", w.Address(), "rebalance_poll", cfg.RebalancePoll)
	if err := mgr.Run(ctx, cfg.RebalancePoll); err != nil && err != context.Canceled {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

// reconcileLoop runs the reconciliation pass on a much longer cadence than
// the rebalance loop itself (SPEC_FULL supplement 1), reusing the sweep
// interval since both are maintenance passes meant to run far less often
// than the protocol's hot path.
func reconcileLoop(ctx context.Context, mgr *coinmanager.Manager, interval time.Duration, log *suilog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := mgr.Reconcile(ctx); err != nil {
				log.Error("reconcile", "err", err)
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
