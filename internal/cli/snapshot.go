package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/dashwatch/internal/control"
	"github.com/vietddude/dashwatch/internal/core/domain"
)

var snapshotFresh bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Load every dashboard metric once and print it",
	Run:   runSnapshot,
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotFresh, "fresh", false, "bypass the shared cache snapshot")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.NewApp(controlConfig(cfg))
	if err != nil {
		slog.Error("Failed to initialize dashwatch", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Stop(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	snap, err := app.Dashboard().Snapshot(ctx, !snapshotFresh)
	if err != nil {
		slog.Error("Failed to load dashboard", "error", err)
		os.Exit(1)
	}

	printSnapshot(os.Stdout, snap)
}

func printSnapshot(out io.Writer, snap domain.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	defer func() {
		_ = w.Flush()
	}()

	_, _ = fmt.Fprintln(w, "METRIC\tVALUE")
	_, _ = fmt.Fprintf(w, "products\t%d\n", snap.ProductStats.Total)
	_, _ = fmt.Fprintf(w, "units in stock\t%d\n", snap.ProductStats.TotalQuantity)
	_, _ = fmt.Fprintf(w, "stock value\t%.2f\n", snap.ProductStats.TotalValue)
	_, _ = fmt.Fprintf(w, "out of stock\t%d\n", snap.ProductStats.OutOfStock)
	_, _ = fmt.Fprintf(w, "sales today\t%d (%s)\n", snap.SalesStats.SalesToday, snap.SalesStats.Source)
	_, _ = fmt.Fprintf(w, "revenue today\t%.2f\n", snap.SalesStats.RevenueToday)
	_, _ = fmt.Fprintf(w, "items sold\t%d\n", snap.SalesStats.ItemsSold)

	for i, p := range snap.TopProducts {
		_, _ = fmt.Fprintf(w, "top #%d\t%s (%d units, %d sales)\n", i+1, p.Name, p.Quantity, p.Sales)
	}
	for _, p := range snap.LowStock {
		_, _ = fmt.Fprintf(w, "low stock\t%s (%d/%d)\n", p.Name, p.Quantity, p.Minimum)
	}
	for _, c := range snap.CategoryDistribution {
		_, _ = fmt.Fprintf(w, "category\t%s (%d products, %d units)\n", c.Category, c.Products, c.Quantity)
	}
	for _, tx := range snap.RecentTransactions {
		_, _ = fmt.Fprintf(w, "recent\t%s %s x%d at %s\n", tx.Type, tx.ProductName, tx.Quantity, tx.At.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "degraded\t%t\n", snap.Degraded)
}
