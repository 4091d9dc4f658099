package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmoretti/lifeline/pkg/config"
)

// apiPort is the --api-port override shared by the commands that talk to
// a running relay. Zero means "use the configured port".
var apiPort int

// controlResponse mirrors the control-endpoint response wrapper.
type controlResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// resolveAPIPort returns the port of the running relay: the --api-port
// flag when set, otherwise the configured API port.
func resolveAPIPort() (int, error) {
	if apiPort != 0 {
		return apiPort, nil
	}
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return 0, err
	}
	return cfg.API.Port, nil
}

// callControl performs one request against the local control surface and
// decodes the wrapped response.
func callControl(method, path string) (*controlResponse, error) {
	port, err := resolveAPIPort()
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("is the relay running on port %d? %w", port, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var wrapped controlResponse
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected response from relay: %w", err)
	}
	if wrapped.Status == "error" || wrapped.Status == "unhealthy" {
		return &wrapped, fmt.Errorf("relay reported: %s", wrapped.Error)
	}
	return &wrapped, nil
}
