package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/dashwatch/internal/infra/redis"
)

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Remove every metric from the shared Redis cache snapshot",
	Run:   runClearCache,
}

func init() {
	rootCmd.AddCommand(clearCacheCmd)
}

func runClearCache(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if !cfg.Cache.Redis.Enabled() {
		slog.Error("cache.redis.url is not configured")
		os.Exit(1)
	}

	client, err := redisclient.NewClient(cfg.Cache.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := redisclient.NewSnapshotStore(client, cfg.Cache.Retention).ClearAll(ctx)
	if err != nil {
		slog.Error("Failed to clear cache", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Cleared %d cached metric entries\n", deleted)
}
