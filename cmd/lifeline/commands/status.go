package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dmoretti/lifeline/internal/cli/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running relay",
	Long: `Show the health, active cache generation and queue depth of a
running relay.

Examples:
  # Status of the relay on the configured port
  lifeline status

  # Status of a relay on a non-default port
  lifeline status --api-port 9000`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&apiPort, "api-port", 0, "port of the running relay (default: from config)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	health, err := callControl(http.MethodGet, "/health/ready")
	if err != nil && health == nil {
		return err
	}

	resp, err := callControl(http.MethodGet, "/control/status")
	if err != nil {
		return err
	}

	var status struct {
		ActiveGeneration  string `json:"active_generation"`
		WaitingGeneration string `json:"waiting_generation"`
		QueueDepth        int    `json:"queue_depth"`
	}
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}

	waiting := status.WaitingGeneration
	if waiting == "" {
		waiting = "-"
	}
	active := status.ActiveGeneration
	if active == "" {
		active = "- (no generation installed)"
	}

	pairs := [][2]string{
		{"Store", health.Status},
		{"Active generation", active},
		{"Waiting generation", waiting},
		{"Queued alerts", strconv.Itoa(status.QueueDepth)},
	}
	if err := output.SimpleTable(os.Stdout, pairs); err != nil {
		return err
	}

	if status.QueueDepth > 0 {
		fmt.Printf("\n%d alert(s) pending delivery. Run \"lifeline sync\" to deliver now.\n", status.QueueDepth)
	}
	return nil
}
