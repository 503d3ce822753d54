package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/callguard/internal/control"
	"github.com/vietddude/callguard/internal/resilience/breaker"
	"github.com/vietddude/callguard/internal/resilience/classify"
	"github.com/vietddude/callguard/internal/resilience/message"
)

var probeTimeout time.Duration

var probeCmd = &cobra.Command{
	Use:   "probe [endpoint]",
	Short: "Run one guarded health check and print the user-facing result",
	Args:  cobra.ExactArgs(1),
	Run:   runProbe,
}

func init() {
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 2*time.Minute, "overall deadline, retries included")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	name := args[0]

	if _, ok := cfg.Endpoint(name); !ok {
		slog.Error("Unknown endpoint", "endpoint", name)
		os.Exit(1)
	}

	app, err := control.NewApp(cfg)
	if err != nil {
		slog.Error("Failed to initialize callguard", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	start := time.Now()
	probeErr := app.Probe(ctx, name)
	elapsed := time.Since(start)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	_ = app.Stop(stopCtx)

	if probeErr == nil {
		fmt.Printf("%s: ok (%s)\n", name, elapsed.Round(time.Millisecond))
		return
	}

	if breaker.IsOpen(probeErr) {
		fmt.Println(probeErr)
	} else {
		fmt.Println(message.ForLogging(classify.Classify(probeErr)))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(message.Describe(probeErr))
	os.Exit(2)
}
