package api

import (
	"fmt"
	"os/exec"

	"github.com/heptiolabs/healthcheck"

	"github.com/GriffinCanCode/termdeck/internal/infrastructure/monitoring"
)

const maxGoroutines = 10000

// NewHealth builds the liveness and readiness checks. With metrics the
// check results are also exported as gauges.
func NewHealth(metrics *monitoring.Metrics, shell string) healthcheck.Handler {
	var health healthcheck.Handler
	if reg := metrics.Registry(); reg != nil {
		health = healthcheck.NewMetricsHandler(reg, "termdeck")
	} else {
		health = healthcheck.NewHandler()
	}

	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	health.AddReadinessCheck("shell", shellCheck(shell))
	return health
}

func shellCheck(shell string) healthcheck.Check {
	return func() error {
		if shell == "" {
			return nil
		}
		if _, err := exec.LookPath(shell); err != nil {
			return fmt.Errorf("shell %q unavailable: %w", shell, err)
		}
		return nil
	}
}
