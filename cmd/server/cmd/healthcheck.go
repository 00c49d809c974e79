package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// HealthResponse is the subset of the /health payload the probe inspects.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func newHealthcheckCommand() *cobra.Command {
	var (
		timeout int
		url     string
	)

	healthcheckCmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /health endpoint.

This command is used by container HEALTHCHECK directives. It exits with
code 0 when the server reports "healthy" and non-zero otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := url
			if target == "" {
				port := os.Getenv("SERVER_PORT")
				if port == "" {
					port = "8080"
				}
				target = fmt.Sprintf("http://localhost:%s/health", port)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeout)*time.Second)
			defer cancel()

			health, err := checkHealth(ctx, http.DefaultClient, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", health.Status)
			return nil
		},
	}

	healthcheckCmd.Flags().IntVar(&timeout, "timeout", 5, "timeout in seconds")
	healthcheckCmd.Flags().StringVar(&url, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/health)")
	return healthcheckCmd
}

// checkHealth calls url and fails unless the server answers 200 with
// status "healthy". Failing checks are named in the error.
func checkHealth(ctx context.Context, client *http.Client, url string) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var health HealthResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&health)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil {
			return nil, fmt.Errorf("unhealthy: status %d%s", resp.StatusCode, failingChecks(health))
		}
		return nil, fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("invalid health response: %w", decodeErr)
	}
	if health.Status != "healthy" {
		return nil, fmt.Errorf("unhealthy: status=%s%s", health.Status, failingChecks(health))
	}
	return &health, nil
}

func failingChecks(health HealthResponse) string {
	var out string
	for name, check := range health.Checks {
		if check.Status == "pass" {
			continue
		}
		out += fmt.Sprintf(" [%s: %s]", name, check.Message)
	}
	return out
}
