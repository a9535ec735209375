package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbianchi/photarc/pkg/config"
)

var (
	scanStop   bool
	scanServer string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Trigger or stop a library scan on a running server",
	Long: `Ask a running photarc server to scan the photo library.

Examples:
  # Trigger a scan against the locally running server
  photarc scan

  # Stop the scan that is currently running
  photarc scan --stop

  # Talk to a server on another host
  photarc scan --server http://nas.local:8080`,
	RunE: runScanCmd,
}

func init() {
	scanCmd.Flags().BoolVar(&scanStop, "stop", false, "Stop the running scan instead of starting one")
	scanCmd.Flags().StringVar(&scanServer, "server", "", "Server base URL (default: http://localhost:<configured port>)")
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	base := scanServer
	if base == "" {
		cfg, err := config.Load(GetConfigFile())
		if err != nil {
			return err
		}
		base = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	method := http.MethodPost
	if scanStop {
		method = http.MethodDelete
	}
	req, err := http.NewRequest(method, base+"/api/scan", nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", base, err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
		Error  string         `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("unexpected response from server: %w", err)
	}

	switch {
	case scanStop && resp.StatusCode == http.StatusOK:
		fmt.Println("Scan stopped.")
	case scanStop:
		return fmt.Errorf("no scan is running")
	case resp.StatusCode == http.StatusAccepted:
		fmt.Printf("Scan started (run %v)\n", body.Data["run_id"])
	case resp.StatusCode == http.StatusConflict:
		fmt.Println(body.Error)
	default:
		return fmt.Errorf("server returned %s: %s", resp.Status, body.Error)
	}
	return nil
}
