package commands

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmoretti/lifeline/internal/cli/prompt"
	"github.com/dmoretti/lifeline/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file interactively",
	Long: `Create a lifeline configuration file by answering a few questions.

The generated file is written to the default config location unless
--config points elsewhere. Existing files are not overwritten without
--force.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	fmt.Println("Lifeline configuration")
	fmt.Printf("Writing to: %s\n\n", path)

	cfg := config.GetDefaultConfig()

	upstream, err := prompt.InputWithValidation("Upstream base URL", cfg.Gateway.Upstream, validateURL)
	if err != nil {
		return abortable(err)
	}
	cfg.Gateway.Upstream = upstream

	remote, err := prompt.InputWithValidation("Alert delivery endpoint", cfg.Remote.Endpoint, validateURL)
	if err != nil {
		return abortable(err)
	}
	cfg.Remote.Endpoint = remote

	port, err := prompt.InputPort("Gateway listen port", cfg.API.Port)
	if err != nil {
		return abortable(err)
	}
	cfg.API.Port = port

	prefixes, err := prompt.Input("Critical path prefixes (comma-separated)", strings.Join(cfg.Gateway.CriticalPrefixes, ","))
	if err != nil {
		return abortable(err)
	}
	cfg.Gateway.CriticalPrefixes = splitList(prefixes)

	storePath, err := prompt.Input("Store directory", cfg.Store.Path)
	if err != nil {
		return abortable(err)
	}
	cfg.Store.Path = storePath

	enableMetrics, err := prompt.Confirm("Enable Prometheus metrics?", false)
	if err != nil {
		return abortable(err)
	}
	cfg.Metrics.Enabled = enableMetrics

	webhook, err := prompt.Input("Notification webhook URL (empty to log only)", "")
	if err != nil {
		return abortable(err)
	}
	cfg.Notify.WebhookURL = webhook

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration is not valid: %w", err)
	}

	if err := config.SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("\nConfiguration written to %s\n", path)
	fmt.Println("Start the relay with: lifeline start")
	return nil
}

func abortable(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}

func validateURL(input string) error {
	u, err := url.Parse(input)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be a valid URL (e.g., https://example.com)")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
