package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"baziai/internal/api"
)

var (
	compatP1Date   string
	compatP1Hour   int
	compatP1Gender string
	compatP2Date   string
	compatP2Hour   int
	compatP2Gender string

	dailyDate   string
	dailyHour   int
	dailyGender string
	dailyTarget string
)

// compatCmd runs a two-person compatibility analysis
var compatCmd = &cobra.Command{
	Use:   "compat",
	Short: "Analyze compatibility between two birth charts",
	RunE:  runCompat,
}

// dailyCmd fetches the daily forecast for one chart
var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Fetch the daily forecast for a birth chart",
	RunE:  runDaily,
}

func init() {
	compatCmd.Flags().StringVar(&compatP1Date, "p1-date", "", "First person's birth date, YYYY-MM-DD (required)")
	compatCmd.Flags().IntVar(&compatP1Hour, "p1-hour", 12, "First person's birth hour, 0-23")
	compatCmd.Flags().StringVar(&compatP1Gender, "p1-gender", "", "First person's gender (required)")
	compatCmd.Flags().StringVar(&compatP2Date, "p2-date", "", "Second person's birth date, YYYY-MM-DD (required)")
	compatCmd.Flags().IntVar(&compatP2Hour, "p2-hour", 12, "Second person's birth hour, 0-23")
	compatCmd.Flags().StringVar(&compatP2Gender, "p2-gender", "", "Second person's gender (required)")
	_ = compatCmd.MarkFlagRequired("p1-date")
	_ = compatCmd.MarkFlagRequired("p1-gender")
	_ = compatCmd.MarkFlagRequired("p2-date")
	_ = compatCmd.MarkFlagRequired("p2-gender")

	dailyCmd.Flags().StringVar(&dailyDate, "date", "", "Birth date, YYYY-MM-DD (required)")
	dailyCmd.Flags().IntVar(&dailyHour, "hour", 12, "Birth hour, 0-23")
	dailyCmd.Flags().StringVar(&dailyGender, "gender", "", "male or female (required)")
	dailyCmd.Flags().StringVar(&dailyTarget, "target", "", "Forecast date, YYYY-MM-DD (default: today)")
	_ = dailyCmd.MarkFlagRequired("date")
	_ = dailyCmd.MarkFlagRequired("gender")
}

func runCompat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newAPIClient()
	defer client.CloseIdleConnections()

	result, err := client.Compatibility(ctx, api.CompatibilityRequest{
		Person1: api.BirthInfo{BirthDate: compatP1Date, BirthHour: compatP1Hour, Gender: compatP1Gender},
		Person2: api.BirthInfo{BirthDate: compatP2Date, BirthHour: compatP2Hour, Gender: compatP2Gender},
	})
	if err != nil {
		if info := api.RateLimitFrom(err); info != nil {
			recordQuota(info)
		}
		return err
	}
	return printJSON(result)
}

func runDaily(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newAPIClient()
	defer client.CloseIdleConnections()

	result, err := client.DailyForecast(ctx, api.DailyForecastRequest{
		BirthDate:  dailyDate,
		BirthHour:  dailyHour,
		Gender:     dailyGender,
		TargetDate: dailyTarget,
	})
	if err != nil {
		if info := api.RateLimitFrom(err); info != nil {
			recordQuota(info)
		}
		return err
	}
	return printJSON(result)
}

// printJSON pretty-prints a raw backend document.
func printJSON(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}
