package app

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Check runs one monitoring cycle out of schedule and prints the cycle
// statistics. On a cold cache the cycle only seeds baselines.
func (a *App) Check(ctx context.Context) error {
	runtime, err := a.BuildRuntime(ctx)
	if err != nil {
		return err
	}
	defer runtime.Close()

	a.Logger.Info().Msg("manual monitoring cycle triggered")
	if err := runtime.Monitor.Cycle(ctx, time.Now().UTC()); err != nil {
		return err
	}

	stats := runtime.Monitor.Stats()
	fmt.Fprintf(os.Stdout, "cycle at:           %s\n", stats.LastCycle.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "tracked currencies: %d\n", stats.TrackedCurrencies)
	fmt.Fprintf(os.Stdout, "active alerts:      %d\n", stats.ActiveAlerts)
	fmt.Fprintf(os.Stdout, "triggered alerts:   %d\n", stats.TriggeredAlerts)
	return nil
}
