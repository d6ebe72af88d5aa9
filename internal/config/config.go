// Package config loads the service's environment-variable configuration,
// mirroring the nested-struct-with-tags approach of the source's
// common/src/utils/config.rs, reimplemented over kelseyhightower/envconfig.
// When ENV=development, a .env file is loaded before the process environment
// is read so local runs don't require exporting every variable by hand.
package config

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full set of environment variables from spec §6.
type Config struct {
	Port             int      `envconfig:"PORT" default:"8000"`
	CORSOrigin       []string `envconfig:"CORS_ORIGIN" default:"*"`
	SuiRPC           string   `envconfig:"SUI_RPC" required:"true"`
	SponsorPrivKey   string   `envconfig:"SPONSOR_PRIV_KEY" required:"true"`
	RedisHost        string   `envconfig:"REDIS_HOST" default:"127.0.0.1"`
	RedisPort        int      `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword    string   `envconfig:"REDIS_PASSWORD"`
	RabbitMQURI      string   `envconfig:"RABBITMQ_URI" required:"true"`
	RetryTTLMillis   int      `envconfig:"RETRY_TTL" default:"60000"`
	MaxPoolCapacity  int      `envconfig:"MAX_POOL_CAPACITY" default:"50"`
	MinPoolCount     int      `envconfig:"MIN_POOL_COUNT" default:"10"`
	CoinBalanceDeposit uint64 `envconfig:"COIN_BALANCE_DEPOSIT" default:"500000000"`
	MinCoinBalance   uint64   `envconfig:"MIN_COIN_BALANCE" default:"1000000"`
	FirebaseAPIKey   string   `envconfig:"FIREBASE_API_KEY"`
	Env              string   `envconfig:"ENV" default:"production"`

	// Policy knobs not named directly as env vars in §6 but required by
	// §4.C/§4.F/§4.G; they may be overridden from a TOML policy file (see
	// LoadPolicyOverrides) and otherwise take the defaults spec.md names.
	LeaseTTL          time.Duration `envconfig:"LEASE_TTL" default:"5m"`
	SweepInterval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"60s"`
	RebalancePoll     time.Duration `envconfig:"REBALANCE_POLL_INTERVAL" default:"1s"`
	MaxGasBudget      uint64        `envconfig:"MAX_GAS_BUDGET" default:"50000000"`
	GasPaymentMinimum uint64        `envconfig:"GAS_PAYMENT_MINIMUM" default:"150000000"`
	MasterLockTTL     time.Duration `envconfig:"MASTER_LOCK_TTL" default:"10s"`
	SubmitFinality    string        `envconfig:"SUBMIT_FINALITY" default:"local"`
}

// Load reads the environment into a Config, first loading a .env file when
// ENV=development.
func Load() (*Config, error) {
	if os.Getenv("ENV") == "development" {
		if err := loadDotEnv(".env"); err != nil {
			return nil, err
		}
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// loadDotEnv is a minimal KEY=VALUE file loader. No dotenv library appears
// in any example module's go.mod, so this stays on the standard library per
// DESIGN.md's justification for stdlib-only boundary concerns.
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}
