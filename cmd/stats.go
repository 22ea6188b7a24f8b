package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/hookline/hookline/internal/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the running server's stats snapshot",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d/api/stats", cfg.Settings.Port)
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("fetch stats (is the server running?): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	var pretty json.RawMessage = body
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return fmt.Errorf("format stats: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
