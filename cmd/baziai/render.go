package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"baziai/internal/report"
	"baziai/internal/session"
)

// sectionLabels maps wire keys to display headings, in the catalog's
// presentation order.
var sectionLabels = map[string]string{
	report.SectionFiveElements:       "Five Elements",
	report.SectionTenGods:            "Ten Gods",
	report.SectionDayMaster:          "Day Master",
	report.SectionAgePeriodsTimeline: "Age Periods Timeline",
	report.SectionCareer:             "Career",
	report.SectionWealth:             "Wealth",
	report.SectionRelationships:      "Relationships",
	report.SectionHealth:             "Health",
}

func sectionLabel(key string) string {
	if label, ok := sectionLabels[key]; ok {
		return label
	}
	return key
}

// streamRenderer prints sections as they resolve. On a terminal it keeps
// a transient progress line underneath; on a pipe it prints plain blocks.
type streamRenderer struct {
	out         io.Writer
	tty         bool
	printed     map[string]bool
	chartShown  bool
	progressLen int
}

func newStreamRenderer(out io.Writer) *streamRenderer {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &streamRenderer{out: out, tty: tty, printed: make(map[string]bool)}
}

// observe folds one snapshot into the output: anything newly resolved is
// printed, then the progress line is redrawn.
func (r *streamRenderer) observe(snap session.Snapshot) {
	if !r.chartShown && len(snap.Chart) > 0 {
		r.clearProgress()
		renderChart(r.out, snap.Chart)
		r.chartShown = true
	}

	for _, key := range sectionKeysWithExtras(snap.Sections) {
		rec := snap.Sections[key]
		if r.printed[key] || !rec.Done() {
			continue
		}
		r.clearProgress()
		renderSection(r.out, key, rec)
		r.printed[key] = true
	}

	if snap.Loading {
		r.drawProgress(snap)
	}
}

// finish renders whatever the terminal snapshot still holds unprinted,
// then the insights.
func (r *streamRenderer) finish(snap session.Snapshot) {
	r.clearProgress()
	r.observe(snap)
	r.clearProgress()
	renderInsights(r.out, snap.Insights)
}

func (r *streamRenderer) drawProgress(snap session.Snapshot) {
	if !r.tty {
		return
	}
	line := fmt.Sprintf("  %3.0f%%  %s...", snap.Progress*100, snap.State)
	fmt.Fprintf(r.out, "\r%s", line)
	if pad := r.progressLen - len(line); pad > 0 {
		fmt.Fprint(r.out, strings.Repeat(" ", pad))
	}
	r.progressLen = len(line)
}

func (r *streamRenderer) clearProgress() {
	if !r.tty || r.progressLen == 0 {
		return
	}
	fmt.Fprintf(r.out, "\r%s\r", strings.Repeat(" ", r.progressLen))
	r.progressLen = 0
}

// sectionKeysWithExtras returns the catalog order followed by any
// out-of-catalog keys the backend sent, sorted.
func sectionKeysWithExtras(sections map[string]report.SectionRecord) []string {
	keys := report.SectionKeys()
	var extras []string
	for key := range sections {
		if !report.IsKnownSection(key) {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	return append(keys, extras...)
}

func renderSection(w io.Writer, key string, rec report.SectionRecord) {
	fmt.Fprintf(w, "===== %s =====\n", sectionLabel(key))
	switch {
	case rec.Error != "":
		fmt.Fprintf(w, "✗ unavailable: %s\n\n", rec.Error)
	case rec.Content != nil:
		fmt.Fprintf(w, "%s\n\n", *rec.Content)
	case rec.Locked:
		fmt.Fprintf(w, "[locked: upgrade to unlock this section]\n\n")
	}
}

func renderInsights(w io.Writer, ins report.Insights) {
	if ins.Text == "" && !ins.Locked {
		return
	}
	fmt.Fprintln(w, "===== Insights =====")
	if ins.Locked {
		fmt.Fprintf(w, "%s\n[locked: upgrade to read the full interpretation]\n\n", ins.Text)
		return
	}
	fmt.Fprintf(w, "%s\n\n", ins.Text)
}

// chartSummary is the slice of the chart document worth a terminal line.
type chartSummary struct {
	FourPillars map[string]json.RawMessage `json:"four_pillars"`
	DayMaster   struct {
		Stem    string `json:"stem"`
		Element string `json:"element"`
	} `json:"day_master"`
}

// renderChart prints a compact header from the chart document. The
// payload shape belongs to the backend; anything unrecognized is skipped
// rather than dumped.
func renderChart(w io.Writer, raw json.RawMessage) {
	var c chartSummary
	if err := json.Unmarshal(raw, &c); err != nil {
		return
	}

	if len(c.FourPillars) > 0 {
		parts := make([]string, 0, 4)
		for _, pos := range []string{"year", "month", "day", "hour"} {
			if p, ok := c.FourPillars[pos]; ok {
				parts = append(parts, pillarString(p))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(w, "Four Pillars: %s\n", strings.Join(parts, "  "))
		}
	}
	if c.DayMaster.Stem != "" {
		if c.DayMaster.Element != "" {
			fmt.Fprintf(w, "Day Master: %s (%s)\n", c.DayMaster.Stem, c.DayMaster.Element)
		} else {
			fmt.Fprintf(w, "Day Master: %s\n", c.DayMaster.Stem)
		}
	}
	fmt.Fprintln(w)
}

// pillarString renders one pillar whether the backend sent a bare string
// or a {stem, branch} object.
func pillarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var p struct {
		Stem   string `json:"stem"`
		Branch string `json:"branch"`
	}
	if err := json.Unmarshal(raw, &p); err == nil && p.Stem != "" {
		return p.Stem + p.Branch
	}
	return string(raw)
}

// renderDocument prints a complete reading: chart, every section in
// order, then insights. Used for history display and synchronous runs.
func renderDocument(w io.Writer, chart json.RawMessage, sections map[string]report.SectionRecord, ins report.Insights) {
	if len(chart) > 0 {
		renderChart(w, chart)
	}
	for _, key := range sectionKeysWithExtras(sections) {
		rec, ok := sections[key]
		if !ok || (!rec.Done() && !rec.Locked) {
			continue
		}
		renderSection(w, key, rec)
	}
	renderInsights(w, ins)
}
