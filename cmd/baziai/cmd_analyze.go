package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"baziai/internal/api"
	"baziai/internal/history"
	"baziai/internal/quota"
	"baziai/internal/report"
	"baziai/internal/session"
)

var (
	analyzeDate      string
	analyzeHour      int
	analyzeGender    string
	analyzeLunar     bool
	analyzeLeapMonth bool
	analyzeSyncOnly  bool
	analyzeNoSave    bool
)

// analyzeCmd runs one full reading
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Stream a full BAZI reading for one birth datetime",
	Long: `Computes the birth chart, then streams the AI analysis section by
section. If the stream breaks before completion the reading is replayed
once over the synchronous endpoint, so a flaky connection still ends in
a complete report.

Example:
  baziai analyze --date 1990-06-15 --hour 14 --gender male --lang zh-TW`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDate, "date", "", "Birth date, YYYY-MM-DD (required)")
	analyzeCmd.Flags().IntVar(&analyzeHour, "hour", 12, "Birth hour, 0-23")
	analyzeCmd.Flags().StringVar(&analyzeGender, "gender", "", "male or female (required)")
	analyzeCmd.Flags().BoolVar(&analyzeLunar, "lunar", false, "Birth date is on the lunar calendar")
	analyzeCmd.Flags().BoolVar(&analyzeLeapMonth, "leap-month", false, "Lunar birth month is the leap month")
	analyzeCmd.Flags().BoolVar(&analyzeSyncOnly, "sync", false, "Skip streaming and run one synchronous request")
	analyzeCmd.Flags().BoolVar(&analyzeNoSave, "no-save", false, "Do not archive the completed reading")
	_ = analyzeCmd.MarkFlagRequired("date")
	_ = analyzeCmd.MarkFlagRequired("gender")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	req := api.AnalysisRequest{
		BirthDate: analyzeDate,
		BirthHour: analyzeHour,
		Gender:    analyzeGender,
	}
	if analyzeLunar {
		req.CalendarType = "lunar"
		req.IsLeapMonth = analyzeLeapMonth
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newAPIClient()
	defer client.CloseIdleConnections()

	if analyzeSyncOnly {
		return runAnalyzeSync(ctx, client, req)
	}

	deps := session.Deps{Backend: client}
	if !analyzeNoSave {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			logger.Warn("history unavailable, reading will not be archived", zap.Error(err))
		} else {
			defer store.Close()
			deps.History = store
		}
	}

	ctrl := session.New(session.Config{
		MaxDuration:     cfg.GetMaxSessionDuration(),
		ChartTimeout:    cfg.GetChartTimeout(),
		FallbackTimeout: cfg.GetFallbackTimeout(),
	}, deps)

	id, err := ctrl.Submit(ctx, req)
	if err != nil {
		return err
	}
	logger.Info("session started",
		zap.String("session", id.String()),
		zap.String("birth_date", req.BirthDate))

	renderer := newStreamRenderer(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			ctrl.Stop()
			fmt.Fprintln(os.Stderr, "\naborted")
			return nil
		case snap := <-ctrl.Updates():
			if !snap.State.Terminal() {
				renderer.observe(snap)
				continue
			}
			return finishAnalyze(renderer, snap)
		}
	}
}

func finishAnalyze(renderer *streamRenderer, snap session.Snapshot) error {
	renderer.clearProgress()
	switch snap.State {
	case session.StateCompleted:
		renderer.finish(snap)
		fmt.Printf("✓ reading complete (session %s)\n", shortID(snap.SessionID))
		return nil

	case session.StateRateLimited:
		recordQuota(snap.RateLimit)
		if snap.RateLimit != nil && snap.RateLimit.Limit > 0 {
			return fmt.Errorf("daily analysis limit reached (%d/%d used); try again tomorrow",
				snap.RateLimit.Used, snap.RateLimit.Limit)
		}
		return fmt.Errorf("daily analysis limit reached; try again tomorrow")

	default:
		return snap.Err
	}
}

// runAnalyzeSync bypasses the session machinery: one request, one
// document. Useful for scripting and for backends without streaming.
func runAnalyzeSync(ctx context.Context, client *api.Client, req api.AnalysisRequest) error {
	doc, err := client.AnalyzeSync(ctx, req)
	if err != nil {
		if info := api.RateLimitFrom(err); info != nil {
			recordQuota(info)
		}
		return err
	}

	renderDocument(os.Stdout, doc.Chart, doc.Sections, doc.Insights)

	if !analyzeNoSave {
		if err := archiveDocument(ctx, req, doc); err != nil {
			logger.Warn("failed to archive reading", zap.Error(err))
		}
	}
	return nil
}

func archiveDocument(ctx context.Context, req api.AnalysisRequest, doc report.Document) error {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Save(ctx, history.Reading{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		Request:   req,
		Chart:     doc.Chart,
		Sections:  doc.Sections,
		Insights:  doc.Insights,
		Locked:    doc.Insights.Locked,
	})
}

// recordQuota caches the backend's usage numbers locally so the quota
// command can answer without a network round trip.
func recordQuota(info *api.RateLimitInfo) {
	if info == nil {
		return
	}
	file := quota.NewFile(cfg.QuotaPath())
	if err := file.Record(info.Used, info.Limit); err != nil {
		logger.Warn("failed to record quota state", zap.Error(err))
	}
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
