package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/verdantworks/verdant/internal/scheduler"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running monitor's status endpoint",
		RunE:  runStatus,
	}
	cmd.Flags().String("addr", "http://localhost:8788", "Address of the running monitor")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/status")
	if err != nil {
		return fmt.Errorf("failed to reach monitor at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("monitor returned %d", resp.StatusCode)
	}

	var status scheduler.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}

	fmt.Printf("State:          %s\n", status.State)
	fmt.Printf("Ticks:          %d\n", status.TickCount)
	fmt.Printf("Errors:         %d\n", status.ErrorCount)
	fmt.Printf("Active units:   %d\n", status.ActiveUnitCount)
	fmt.Printf("Last tick:      %s\n", status.LastTickTime.Format(time.RFC3339))
	fmt.Printf("Last duration:  %s\n", status.LastCycleDuration)
	return nil
}
