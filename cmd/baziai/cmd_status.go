package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// healthCmd checks backend liveness
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the backend is reachable",
	RunE:  runHealth,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("baziai %s\n", Version)
	},
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newAPIClient()
	defer client.CloseIdleConnections()

	status, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("backend unreachable at %s: %w", cfg.Service.BaseURL, err)
	}

	fmt.Printf("✓ %s\n", cfg.Service.BaseURL)
	fmt.Printf("  status:  %s\n", status.Status)
	if status.Service != "" {
		fmt.Printf("  service: %s\n", status.Service)
	}
	if status.Version != "" {
		fmt.Printf("  version: %s\n", status.Version)
	}
	return nil
}
