package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"baziai/internal/history"
)

var historyLimit int

// historyCmd manages archived readings
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show, and delete archived readings",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print one archived reading in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete one archived reading",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of readings to list")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

func openHistory() (*history.Store, error) {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List(context.Background(), historyLimit)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no readings archived yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSAVED\tBIRTH\tHOUR\tGENDER\tLANG")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(s.ID),
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			s.BirthDate,
			s.BirthHour,
			s.Gender,
			s.Language)
	}
	return w.Flush()
}

// resolveReadingID accepts a full UUID or an unambiguous prefix of one.
func resolveReadingID(store *history.Store, arg string) (uuid.UUID, error) {
	id, err := store.FindByPrefix(context.Background(), arg)
	if errors.Is(err, history.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("no reading matches %q", arg)
	}
	return id, err
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := resolveReadingID(store, args[0])
	if err != nil {
		return err
	}
	r, err := store.Get(context.Background(), id)
	if err != nil {
		return err
	}

	fmt.Printf("Reading %s: %s, hour %d, %s (saved %s)\n",
		shortID(r.ID), r.Request.BirthDate, r.Request.BirthHour,
		r.Request.Gender, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Println()
	renderDocument(os.Stdout, r.Chart, r.Sections, r.Insights)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := resolveReadingID(store, args[0])
	if err != nil {
		return err
	}
	if err := store.Delete(context.Background(), id); err != nil {
		return err
	}
	fmt.Printf("✓ deleted %s\n", shortID(id))
	return nil
}
