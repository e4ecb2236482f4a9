package stream

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func strptr(s string) *string { return &s }

func TestParseLineEvents(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "chart",
			line: `data: {"type":"bazi_chart","data":{"four_pillars":{"year":"庚午"},"day_master":"甲"}}`,
			want: ChartEvent{Data: []byte(`{"four_pillars":{"year":"庚午"},"day_master":"甲"}`)},
		},
		{
			name: "section with string content",
			line: `data: {"type":"section","key":"five_elements","content":"Wood dominates this chart.","is_locked":false}`,
			want: SectionEvent{Key: "five_elements", Content: strptr("Wood dominates this chart.")},
		},
		{
			name: "section with object content is compacted",
			line: `data: {"type":"section","key":"age_periods_timeline","content":{"periods": [{"age": 3,  "pillar": "辛未"}]},"is_locked":false}`,
			want: SectionEvent{Key: "age_periods_timeline", Content: strptr(`{"periods":[{"age":3,"pillar":"辛未"}]}`)},
		},
		{
			name: "locked section placeholder",
			line: `data: {"type":"section","key":"wealth","content":null,"is_locked":true}`,
			want: SectionEvent{Key: "wealth", Locked: true},
		},
		{
			name: "locked section with preview content",
			line: `data: {"type":"section","key":"career","content":"First lines of the reading...","is_locked":true}`,
			want: SectionEvent{Key: "career", Content: strptr("First lines of the reading..."), Locked: true},
		},
		{
			name: "section generation failure",
			line: `data: {"type":"section","key":"health","error":"Generation failed","content":null}`,
			want: SectionEvent{Key: "health", Err: "Generation failed"},
		},
		{
			name: "section gating failure keeps lock",
			line: `data: {"type":"section","key":"relationships","error":"Gating failed","content":null,"is_locked":true}`,
			want: SectionEvent{Key: "relationships", Locked: true, Err: "Gating failed"},
		},
		{
			name: "insight delta",
			line: `data: {"type":"insight","text":"Overall, "}`,
			want: InsightDeltaEvent{Text: "Overall, "},
		},
		{
			name: "insight locked",
			line: `data: {"type":"insight_locked","preview":"The first three lines..."}`,
			want: InsightLockedEvent{Preview: "The first three lines..."},
		},
		{
			name: "complete",
			line: `data: {"type":"complete"}`,
			want: CompleteEvent{},
		},
		{
			name: "in-band error",
			line: `data: {"type":"error","message":"Analysis failed"}`,
			want: ErrorEvent{Message: "Analysis failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.line)
			if !ok {
				t.Fatalf("ParseLine(%q) not ok", tt.line)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("event mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseLineSkips(t *testing.T) {
	lines := []struct {
		name string
		line string
	}{
		{"blank separator", ""},
		{"comment line", ": keepalive"},
		{"no data prefix", `{"type":"complete"}`},
		{"prefix without space", `data:{"type":"complete"}`},
		{"malformed json", `data: {"type":"secti`},
		{"done sentinel from other protocols", "data: [DONE]"},
		{"unknown type", `data: {"type":"usage","tokens":120}`},
		{"section without key", `data: {"type":"section","content":"orphan"}`},
	}

	for _, tt := range lines {
		t.Run(tt.name, func(t *testing.T) {
			if ev, ok := ParseLine(tt.line); ok {
				t.Errorf("ParseLine(%q) = %#v, want skip", tt.line, ev)
			}
		})
	}
}

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *string
	}{
		{"absent", "", nil},
		{"null", "null", nil},
		{"plain string", `"hello"`, strptr("hello")},
		{"string with escapes", `"line\nbreak"`, strptr("line\nbreak")},
		{"object", `{"a": 1, "b": [2, 3]}`, strptr(`{"a":1,"b":[2,3]}`)},
		{"array", `[1, 2]`, strptr(`[1,2]`)},
		{"number", `42`, strptr("42")},
		{"truncated object", `{"a":`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeContent([]byte(tt.raw))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NormalizeContent(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestKind(t *testing.T) {
	events := map[string]Event{
		"bazi_chart":     ChartEvent{},
		"section":        SectionEvent{},
		"insight":        InsightDeltaEvent{},
		"insight_locked": InsightLockedEvent{},
		"complete":       CompleteEvent{},
		"error":          ErrorEvent{},
	}
	for want, ev := range events {
		if got := Kind(ev); got != want {
			t.Errorf("Kind(%T) = %q, want %q", ev, got, want)
		}
	}
}

func TestIsDataLine(t *testing.T) {
	if !IsDataLine(`data: {"type":"complete"}`) {
		t.Error("marked line not recognized")
	}
	if IsDataLine(": keepalive") || IsDataLine("") || IsDataLine("data:{}") {
		t.Error("unmarked line recognized")
	}
}
