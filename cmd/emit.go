package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/event"
	"github.com/hookline/hookline/internal/eventlog"
	"github.com/hookline/hookline/internal/identity"
)

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Ingest one event from stdin JSON",
	Long:  `Reads a single JSON event object from stdin and posts it to the running server's ingest endpoint. With --direct, appends straight to the log instead (the watcher picks it up either way).`,
	RunE:  runEmit,
}

var (
	emitSession string
	emitDirect  bool
)

func init() {
	emitCmd.Flags().StringVar(&emitSession, "session", "", "session ID override")
	emitCmd.Flags().BoolVar(&emitDirect, "direct", false, "append to the log directly instead of posting to the server")
	rootCmd.AddCommand(emitCmd)
}

func runEmit(_ *cobra.Command, _ []string) error {
	if emitSession != "" {
		identity.SetSessionID(emitSession)
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	var e event.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}

	if e.V == 0 {
		e.V = 1
	}
	if e.TS == 0 {
		e.TS = float64(time.Now().UnixNano()) / 1e9
	}
	if e.SessionID == "" {
		e.SessionID = identity.SessionID()
	}
	// IDs are minted from byte offsets by the watcher, never here.
	e.ID = ""

	if errs := event.Validate(e, time.Now()); len(errs) > 0 {
		for _, fe := range errs {
			fmt.Fprintln(os.Stderr, fe.Error())
		}
		return fmt.Errorf("invalid event")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if emitDirect {
		logPath, err := cfg.LogPath()
		if err != nil {
			return err
		}
		return eventlog.New(logPath).Append(e)
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d/api/event", cfg.Settings.Port)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post event (is the server running? try --direct): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server rejected event: %s %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}
