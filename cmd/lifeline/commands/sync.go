package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deliver queued alerts now",
	Long: `Ask the running relay to deliver all queued alerts immediately
instead of waiting for the next periodic attempt.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().IntVar(&apiPort, "api-port", 0, "port of the running relay (default: from config)")
}

func runSync(cmd *cobra.Command, args []string) error {
	resp, err := callControl(http.MethodPost, "/control/sync")
	if err != nil {
		return err
	}

	var report struct {
		Skipped bool `json:"skipped"`
		Results []struct {
			ID        int64  `json:"id"`
			Delivered bool   `json:"delivered"`
			Error     string `json:"error"`
		} `json:"results"`
		Delivered int `json:"delivered"`
		Remaining int `json:"remaining"`
	}
	if err := json.Unmarshal(resp.Data, &report); err != nil {
		return fmt.Errorf("failed to decode sync report: %w", err)
	}

	if report.Skipped {
		fmt.Println("A sync is already in progress; nothing to do.")
		return nil
	}

	for _, r := range report.Results {
		if r.Delivered {
			fmt.Printf("  delivered  alert %d\n", r.ID)
		} else {
			fmt.Printf("  failed     alert %d: %s\n", r.ID, r.Error)
		}
	}

	fmt.Printf("Delivered %d alert(s), %d remaining.\n", report.Delivered, report.Remaining)
	if report.Remaining > 0 {
		return fmt.Errorf("%d alert(s) could not be delivered", report.Remaining)
	}
	return nil
}
