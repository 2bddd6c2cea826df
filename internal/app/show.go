package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent rate-history rows.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	runtime, err := a.BuildRuntime(ctx)
	if err != nil {
		return err
	}
	defer runtime.Close()

	entries, err := runtime.Store.ListRecentRateHistory(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no history entries found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tCurrency\tRate\tChange%")

	for _, entry := range entries {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			entry.ObservedAt.UTC().Format(time.RFC3339),
			entry.Currency,
			entry.Rate.StringFixed(4),
			entry.ChangePct.StringFixed(2),
		)
	}

	writer.Flush()
	return nil
}
