package sensor

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/log2"
)

// InitRetry calls Init() until success, sleeping backoff delay between attempts.
// attempts<=0 means no limit.
func InitRetry(ctx context.Context, log *log2.Log, g *Guard, backoff *helpers.Backoff, attempts int) error {
	for i := 1; ; i++ {
		err := g.Do(func(a Adapter) error { return a.Init() })
		if err == nil {
			backoff.Reset()
			log.Infof("sensor initialized")
			return nil
		}
		if attempts > 0 && i >= attempts {
			return errors.Wrapf(err, ErrInitFailed, "after %d attempts", i)
		}
		delay := backoff.Failure()
		log.Warnf("sensor init failed (%v), retrying after %s", err, delay)
		if err := helpers.Sleep(ctx, delay, nil, nil); err != nil {
			return errors.Annotate(err, "sensor init")
		}
	}
}

// Describe reads sensor once and reports values in every supported unit.
// Fluid density is left at saltwater, the common deployment.
func Describe(g *Guard) ([]string, error) {
	var lines []string
	err := g.Do(func(a Adapter) error {
		if err := a.Read(); err != nil {
			return errors.Wrap(err, ErrReadFailed)
		}
		lines = append(lines,
			fmt.Sprintf("initial pressure: %v atm, %v Torr, %v psi",
				a.Pressure(UnitsAtm), a.Pressure(UnitsTorr), a.Pressure(UnitsPsi)),
			fmt.Sprintf("initial temperature: %v C, %v F, %v K",
				a.Temperature(Celsius), a.Temperature(Fahrenheit), a.Temperature(Kelvin)),
		)
		a.SetFluidDensity(DensityFreshwater)
		fresh := a.Depth()
		a.SetFluidDensity(DensitySaltwater)
		salt := a.Depth()
		lines = append(lines,
			fmt.Sprintf("initial depth: %v m (freshwater), %v m (saltwater)", fresh, salt),
			fmt.Sprintf("initial altitude: %v m", a.Altitude()),
		)
		return nil
	})
	return lines, err
}
