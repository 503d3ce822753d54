package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/callguard/internal/resilience/breaker"
)

var resetAll bool

var resetCmd = &cobra.Command{
	Use:   "reset [endpoint]",
	Short: "Force an endpoint's circuit breaker closed",
	Args: func(cmd *cobra.Command, args []string) error {
		if resetAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	Run: runReset,
}

func init() {
	resetCmd.Flags().StringVar(&serverURL, "server", "", "admin server URL (default http://localhost:<server.port>)")
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "reset every breaker")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	base := adminURL(cfg)

	if resetAll {
		var snaps []breaker.Snapshot
		if err := adminRequest(ctx, "POST", base+"/breakers/reset", &snaps); err != nil {
			slog.Error("Failed to reset breakers", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Reset %d breakers\n", len(snaps))
		return
	}

	endpoint := args[0]
	var snap breaker.Snapshot
	if err := adminRequest(ctx, "POST", base+"/breakers/"+url.PathEscape(endpoint)+"/reset", &snap); err != nil {
		slog.Error("Failed to reset breaker", "endpoint", endpoint, "error", err)
		os.Exit(1)
	}
	fmt.Printf("Breaker %s is now %s\n", snap.Endpoint, snap.State)
}
