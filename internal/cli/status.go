package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/callguard/internal/core/config"
	redisclient "github.com/vietddude/callguard/internal/infra/redis"
	"github.com/vietddude/callguard/internal/resilience/breaker"
	"github.com/vietddude/callguard/internal/resilience/message"
)

var (
	serverURL   string
	fromRedis   bool
	transitions int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the circuit breaker state of every endpoint",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "", "admin server URL (default http://localhost:<server.port>)")
	statusCmd.Flags().BoolVar(&fromRedis, "redis", false, "read published snapshots from Redis instead of the admin server")
	statusCmd.Flags().IntVar(&transitions, "transitions", 0, "with --redis, also show the N most recent transitions")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		snaps []breaker.Snapshot
		trs   []redisclient.Transition
		err   error
	)
	if fromRedis {
		snaps, trs, err = statusFromRedis(ctx, cfg)
	} else {
		snaps, err = statusFromServer(ctx, adminURL(cfg))
	}
	if err != nil {
		slog.Error("Failed to fetch breaker status", "error", err)
		os.Exit(1)
	}

	printSnapshots(os.Stdout, snaps, time.Now())

	if len(trs) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "AT\tENDPOINT\tFROM\tTO")
		for _, tr := range trs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tr.At.Format(time.RFC3339), tr.Endpoint, tr.From, tr.To)
		}
		_ = w.Flush()
	}
}

func adminURL(cfg *config.AppConfig) string {
	if serverURL != "" {
		return serverURL
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
}

func statusFromServer(ctx context.Context, base string) ([]breaker.Snapshot, error) {
	var snaps []breaker.Snapshot
	if err := adminRequest(ctx, http.MethodGet, base+"/health/breakers", &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

func statusFromRedis(ctx context.Context, cfg *config.AppConfig) ([]breaker.Snapshot, []redisclient.Transition, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil, fmt.Errorf("redis.url is not configured")
	}
	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = client.Close()
	}()

	store := redisclient.NewSnapshotStore(client, redisclient.StoreConfig{})
	snaps, err := store.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	var trs []redisclient.Transition
	if transitions > 0 {
		if trs, err = store.Transitions(ctx, transitions); err != nil {
			return nil, nil, err
		}
	}
	return snaps, trs, nil
}

func printSnapshots(out io.Writer, snaps []breaker.Snapshot, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ENDPOINT\tSTATE\tFAILURES\tRETRY IN")

	for _, s := range snaps {
		retryIn := "-"
		if s.State == breaker.StateOpen {
			retryIn = message.CountdownDuration(s.NextAttempt.Sub(now))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Endpoint, s.State, s.FailureCount, retryIn)
	}
	_ = w.Flush()
}

// adminRequest calls the admin server and decodes a JSON response into out.
func adminRequest(ctx context.Context, method, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("admin request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("admin server: %s", body.Error)
		}
		return fmt.Errorf("admin server returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
