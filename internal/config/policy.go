package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

func parseDurationOrZero(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// PolicyOverrides is an optional, non-secret TOML file layered on top of the
// env-derived Config, mirroring go-ethereum's TOML config file convention
// (cmd/geth accepts --config a TOML file while secrets still come from flags
// and env). Only the tunables operators plausibly want to adjust without a
// redeploy are exposed here.
type PolicyOverrides struct {
	LeaseTTL          string `toml:"lease_ttl"`
	SweepInterval     string `toml:"sweep_interval"`
	MaxGasBudget      *uint64 `toml:"max_gas_budget"`
	GasPaymentMinimum *uint64 `toml:"gas_payment_minimum"`
	SubmitFinality    string `toml:"submit_finality"`
}

// LoadPolicyOverrides decodes path, if present, into a PolicyOverrides.
// A missing file is not an error: the overrides are optional.
func LoadPolicyOverrides(path string) (*PolicyOverrides, error) {
	var p PolicyOverrides
	meta, err := toml.DecodeFile(path, &p)
	if err != nil {
		if os.IsNotExist(err) {
			return &PolicyOverrides{}, nil
		}
		return nil, err
	}
	_ = meta
	return &p, nil
}

// Apply merges non-zero fields of p into c. Durations given as invalid
// strings are ignored (the env-derived default is kept); this is a best
// effort convenience layer, not a validating config parser.
func (p *PolicyOverrides) Apply(c *Config) {
	if p == nil {
		return
	}
	if d, err := parseDurationOrZero(p.LeaseTTL); err == nil && d > 0 {
		c.LeaseTTL = d
	}
	if d, err := parseDurationOrZero(p.SweepInterval); err == nil && d > 0 {
		c.SweepInterval = d
	}
	if p.MaxGasBudget != nil {
		c.MaxGasBudget = *p.MaxGasBudget
	}
	if p.GasPaymentMinimum != nil {
		c.GasPaymentMinimum = *p.GasPaymentMinimum
	}
	if p.SubmitFinality != "" {
		c.SubmitFinality = p.SubmitFinality
	}
}
