package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"baziai/internal/quota"
)

// quotaCmd reports the locally cached usage numbers
var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show the last known daily usage",
	Long: `Shows the usage numbers the backend reported on the most recent
rate-limit response. The backend owns the quota; this is a local note,
useful for knowing whether another attempt today is pointless.`,
	RunE: runQuotaShow,
}

var quotaClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the cached usage numbers",
	RunE:  runQuotaClear,
}

func init() {
	quotaCmd.AddCommand(quotaClearCmd)
}

func runQuotaShow(cmd *cobra.Command, args []string) error {
	status, ok, err := quota.NewFile(cfg.QuotaPath()).Load()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("no usage recorded; you have not hit the daily limit recently")
		return nil
	}

	fmt.Printf("used %d of %d analyses (%d remaining)\n",
		status.Used, status.Limit, status.Remaining())
	fmt.Printf("observed %s\n", status.ObservedAt.Local().Format("2006-01-02 15:04"))

	if !status.SameDay(time.Now()) {
		fmt.Println("recorded on an earlier day; the daily count has likely reset")
	} else if status.Exhausted() {
		fmt.Println("✗ limit reached for today")
	}
	return nil
}

func runQuotaClear(cmd *cobra.Command, args []string) error {
	if err := quota.NewFile(cfg.QuotaPath()).Clear(); err != nil {
		return err
	}
	fmt.Println("✓ cleared")
	return nil
}
