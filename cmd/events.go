package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/event"
	"github.com/hookline/hookline/internal/eventlog"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Read historical events from the log",
	Long:  `Scans the append log offline and prints events as JSON lines, oldest first, with the same byte-offset canonical IDs the live watcher assigns.`,
	RunE:  runEvents,
}

var (
	eventsTail     int
	eventsBeforeTS float64
	eventsLimit    int
)

func init() {
	eventsCmd.Flags().IntVar(&eventsTail, "tail", 0, "print only the last N events")
	eventsCmd.Flags().Float64Var(&eventsBeforeTS, "before-ts", 0, "print events with timestamps before this value")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", eventlog.DefaultReadLimit, "maximum events to print")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logPath, err := cfg.LogPath()
	if err != nil {
		return err
	}
	log := eventlog.New(logPath)

	var events []event.Event
	switch {
	case eventsBeforeTS > 0:
		events, _, err = log.Before(eventsBeforeTS, eventsLimit)
	case eventsTail > 0:
		events, err = log.Tail(min(eventsTail, eventsLimit))
	default:
		events, err = log.Tail(eventsLimit)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
