package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmoretti/lifeline/internal/cli/output"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List queued emergency alerts",
	Long: `List the emergency alerts captured while offline and still waiting
for delivery.`,
	RunE: runQueue,
}

func init() {
	queueCmd.Flags().IntVar(&apiPort, "api-port", 0, "port of the running relay (default: from config)")
}

func runQueue(cmd *cobra.Command, args []string) error {
	resp, err := callControl(http.MethodGet, "/control/queue")
	if err != nil {
		return err
	}

	var entries []struct {
		ID         int64           `json:"id"`
		Payload    json.RawMessage `json:"payload"`
		EnqueuedAt time.Time       `json:"enqueued_at"`
	}
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		return fmt.Errorf("failed to decode queue: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	table := output.NewTableData("ID", "Enqueued", "Payload")
	for _, e := range entries {
		table.AddRow(
			strconv.FormatInt(e.ID, 10),
			e.EnqueuedAt.Local().Format(time.RFC3339),
			truncatePayload(e.Payload, 60),
		)
	}
	if err := output.PrintTable(os.Stdout, table); err != nil {
		return err
	}

	fmt.Printf("\n%d alert(s) pending delivery.\n", len(entries))
	return nil
}

// truncatePayload renders a payload preview that fits on one table row.
func truncatePayload(payload []byte, max int) string {
	s := string(payload)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
