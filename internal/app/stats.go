package app

import (
	"context"
	"fmt"
	"os"
)

// Stats prints stored aggregates: alert usage and recipient counts.
func (a *App) Stats(ctx context.Context) error {
	runtime, err := a.BuildRuntime(ctx)
	if err != nil {
		return err
	}
	defer runtime.Close()

	alertStats, err := runtime.Store.AlertStats(ctx)
	if err != nil {
		return err
	}
	subscribers, err := runtime.Store.CountActiveSubscribers(ctx)
	if err != nil {
		return err
	}
	groups, err := runtime.Store.CountActiveGroups(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "active alerts:       %d\n", alertStats.TotalActive)
	fmt.Fprintf(os.Stdout, "users with alerts:   %d\n", alertStats.DistinctUsers)
	fmt.Fprintf(os.Stdout, "subscribers:         %d\n", subscribers)
	fmt.Fprintf(os.Stdout, "group subscribers:   %d\n", groups)
	return nil
}
