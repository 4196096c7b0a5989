package approval

import (
	"procurement-insight/decision/order"
	"procurement-insight/pkg/errors"
	"procurement-insight/pkg/platform"
)

// Config holds the approval policy. All thresholds are explicit so callers can
// tune policy without touching the analyzer.
type Config struct {
	// AnomalyThresholdPercent flags an item priced at or above this delta
	AnomalyThresholdPercent float64
	// OpenOrderRiskCount is the open-order count at which supplier risk fires
	OpenOrderRiskCount int
	SupplierRiskWeight int
	// AnomalyWeight is added once per anomalous item
	AnomalyWeight int
	// MissingDataWeight applies only when no item is anomalous
	MissingDataWeight int
	// SeverityThreshold is the score at which anomalies block approval
	SeverityThreshold  int
	ApprovableStatuses []string
}

// DefaultConfig returns the standard approval policy
func DefaultConfig() Config {
	return Config{
		AnomalyThresholdPercent: 20,
		OpenOrderRiskCount:      3,
		SupplierRiskWeight:      15,
		AnomalyWeight:           30,
		MissingDataWeight:       10,
		SeverityThreshold:       30,
		ApprovableStatuses:      []string{order.StatusDraft, order.StatusToReceive},
	}
}

// ConfigFromEnv overlays PROCUREMENT_* environment variables on the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.AnomalyThresholdPercent = platform.GetEnvFloat("PROCUREMENT_ANOMALY_THRESHOLD", cfg.AnomalyThresholdPercent)
	cfg.OpenOrderRiskCount = platform.GetEnvInt("PROCUREMENT_OPEN_ORDER_RISK", cfg.OpenOrderRiskCount)
	cfg.SeverityThreshold = platform.GetEnvInt("PROCUREMENT_SEVERITY_THRESHOLD", cfg.SeverityThreshold)
	cfg.ApprovableStatuses = platform.GetEnvList("PROCUREMENT_APPROVABLE_STATUSES", cfg.ApprovableStatuses)
	return cfg
}

// Validate rejects settings that would make every order trivially pass or fail.
func (c Config) Validate() error {
	switch {
	case c.AnomalyThresholdPercent <= 0:
		return errors.NewInvalidConfigError("anomaly threshold", "must be positive")
	case c.OpenOrderRiskCount < 1:
		return errors.NewInvalidConfigError("open order risk count", "must be at least 1")
	case c.SeverityThreshold < 1:
		return errors.NewInvalidConfigError("severity threshold", "must be at least 1")
	case len(c.ApprovableStatuses) == 0:
		return errors.NewInvalidConfigError("approvable statuses", "must not be empty")
	}
	return nil
}

func (c Config) approvable(status string) bool {
	for _, s := range c.ApprovableStatuses {
		if s == status {
			return true
		}
	}
	return false
}
