package decision

import "fmt"

// Config holds the tunables of target selection and demand sizing.
type Config struct {
	// HarvestFraction is the share of maximum yield one harvest batch
	// extracts. It also feeds the steady-state throughput estimate.
	HarvestFraction float64

	// TopK bounds how many targets one cycle works. Zero or less means all.
	TopK int

	// RestoreTimeMultiplier scales one restore duration into a rough
	// estimate of the time to refill a target that is below half yield.
	RestoreTimeMultiplier float64

	// ReservedTargets are never scored.
	ReservedTargets []string
}

func DefaultConfig() Config {
	return Config{
		HarvestFraction:       0.25,
		TopK:                  10,
		RestoreTimeMultiplier: 3,
		ReservedTargets:       []string{"darkweb"},
	}
}

func (c Config) Validate() error {
	if c.HarvestFraction <= 0 || c.HarvestFraction >= 1 {
		return fmt.Errorf("harvest fraction %v must be in (0,1)", c.HarvestFraction)
	}
	if c.RestoreTimeMultiplier < 0 {
		return fmt.Errorf("restore time multiplier %v must not be negative", c.RestoreTimeMultiplier)
	}
	return nil
}
