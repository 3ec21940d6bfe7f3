package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yohanns/storefront/internal/loadtest"
	"github.com/yohanns/storefront/internal/store/sqlite"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "server",
	Short:   "Stress the checkout and artist assignment path",
	Long: `Place many orders concurrently against a scratch SQLite database and
move each to layout, which starts production and assigns an artist.

Reports checkout and layout latencies, open tasks per artist, and fails
when an order ends up with no task or duplicate tasks, or when open tasks
differ by more than one between artists.

Example usage:
  yohanns loadtest
  yohanns loadtest --orders 1000 --workers 32 --artists 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orders, _ := cmd.Flags().GetInt("orders")
		workers, _ := cmd.Flags().GetInt("workers")
		artists, _ := cmd.Flags().GetInt("artists")
		path, _ := cmd.Flags().GetString("db")

		if path == "" {
			dir, err := os.MkdirTemp("", "yohanns-loadtest-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			path = filepath.Join(dir, "load.db")
		}

		db, err := sqlite.OpenContext(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Printf("Placing %d orders with %d workers across %d artists...\n", orders, workers, artists)
		rep, err := loadtest.Run(cmd.Context(), db, loadtest.Options{
			Orders:  orders,
			Workers: workers,
			Artists: artists,
			Logger:  logger.Named("loadtest"),
		})
		if err != nil {
			return err
		}
		rep.Print(os.Stdout)
		if !rep.OK() {
			return fmt.Errorf("load test failed")
		}
		fmt.Printf("%s Assignment stayed balanced\n", accent("✓"))
		return nil
	},
}

func init() {
	loadtestCmd.Flags().Int("orders", 200, "orders to place")
	loadtestCmd.Flags().Int("workers", 16, "concurrent customers")
	loadtestCmd.Flags().Int("artists", 5, "active artists")
	loadtestCmd.Flags().String("db", "", "SQLite file to use (default: a temporary file)")
	rootCmd.AddCommand(loadtestCmd)
}
