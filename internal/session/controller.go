// Package session owns the analysis lifecycle: chart fetch, the event
// stream, the synchronous fallback, and the terminal states. One
// Controller serves one consumer (a UI, the CLI) and runs at most one
// session at a time; a new Submit supersedes the previous session
// outright.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"baziai/internal/api"
	"baziai/internal/history"
	"baziai/internal/logging"
	"baziai/internal/metric"
	"baziai/internal/report"
	"baziai/internal/stream"
)

// State is the session's position in the lifecycle.
type State int

const (
	StateIdle State = iota
	StateFetchingChart
	StateStreaming
	StateFallingBack
	StateCompleted
	StateRateLimited
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingChart:
		return "fetching_chart"
	case StateStreaming:
		return "streaming"
	case StateFallingBack:
		return "falling_back"
	case StateCompleted:
		return "completed"
	case StateRateLimited:
		return "rate_limited"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Loading reports whether work is still in flight.
func (s State) Loading() bool {
	return s == StateFetchingChart || s == StateStreaming || s == StateFallingBack
}

// Terminal reports whether the session has ended. RateLimited is terminal
// for the session; the user may submit again later.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRateLimited || s == StateFailed
}

// Config bounds one session's phases.
type Config struct {
	MaxDuration     time.Duration // hard ceiling on a whole session
	ChartTimeout    time.Duration // chart fetch budget
	FallbackTimeout time.Duration // synchronous replay budget
}

func (c Config) withDefaults() Config {
	if c.MaxDuration <= 0 {
		c.MaxDuration = 5 * time.Minute
	}
	if c.ChartTimeout <= 0 {
		c.ChartTimeout = 30 * time.Second
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = 2 * time.Minute
	}
	return c
}

// Backend is the slice of the API client the controller drives.
// *api.Client satisfies it.
type Backend interface {
	FetchChart(ctx context.Context, req api.AnalysisRequest) (*api.ChartResponse, error)
	AnalyzeStream(ctx context.Context, req api.AnalysisRequest) (<-chan stream.Event, <-chan error)
	AnalyzeSync(ctx context.Context, req api.AnalysisRequest) (report.Document, error)
}

// Recorder persists completed readings. *history.Store satisfies it.
type Recorder interface {
	Save(ctx context.Context, r history.Reading) error
}

// Deps wires the controller's collaborators. Backend is required;
// Metrics and History are optional and nil disables them.
type Deps struct {
	Backend Backend
	Metrics *metric.Set
	History Recorder
}

// Snapshot is the consumer-facing view: the state machine position plus
// a consistent deep copy of the report. Never a live reference.
type Snapshot struct {
	State     State
	SessionID uuid.UUID
	Loading   bool
	Err       error
	RateLimit *api.RateLimitInfo
	report.Snapshot
}

// Controller runs the state machine. All fields below mu are owned by it;
// the per-session run goroutine mutates them only through token-checked
// helpers, so a superseded session cannot write.
type Controller struct {
	backend  Backend
	cfg      Config
	metrics  *metric.Set
	recorder Recorder

	updates chan Snapshot

	mu           sync.Mutex
	tokens       tokenSource
	state        State
	store        *report.Store
	sessionID    uuid.UUID
	request      api.AnalysisRequest
	transcript   *logging.Transcript
	err          error
	rateLimit    *api.RateLimitInfo
	completeSeen bool
	inband       string
	startedAt    time.Time
}

// New builds an idle controller.
func New(cfg Config, deps Deps) *Controller {
	return &Controller{
		backend:  deps.Backend,
		cfg:      cfg.withDefaults(),
		metrics:  deps.Metrics,
		recorder: deps.History,
		store:    report.NewStore(),
		updates:  make(chan Snapshot, 1),
	}
}

// Submit starts a new session, superseding any active one. The returned
// id names the session in snapshots, transcripts, and history.
func (c *Controller) Submit(ctx context.Context, req api.AnalysisRequest) (uuid.UUID, error) {
	if c.backend == nil {
		return uuid.Nil, fmt.Errorf("no backend configured")
	}
	if req.BirthDate == "" {
		return uuid.Nil, fmt.Errorf("birth_date is required")
	}
	if req.BirthHour < 0 || req.BirthHour > 23 {
		return uuid.Nil, fmt.Errorf("birth_hour %d out of range", req.BirthHour)
	}

	id := uuid.New()
	tr := logging.TranscriptFor(id.String())

	c.mu.Lock()
	tok := c.tokens.Issue(logging.WithTranscript(ctx, tr), c.cfg.MaxDuration, id)
	from := c.state
	c.state = StateFetchingChart
	c.sessionID = id
	c.store = report.NewStore()
	c.request = req
	c.transcript = tr
	c.err = nil
	c.rateLimit = nil
	c.completeSeen = false
	c.inband = ""
	c.startedAt = time.Now()
	c.publishLocked()
	c.mu.Unlock()

	c.metrics.SessionStarted()
	tr.SessionStart(req.BirthDate, req.Language)
	tr.StateChange(from.String(), StateFetchingChart.String())
	logging.Session("session %s submitted for %s", id, req.BirthDate)

	go c.run(tok, req, tr)
	return id, nil
}

// Stop aborts the active session. Resolved sections stay readable; the
// state machine returns to Idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokens.Invalidate()
	if c.state == StateIdle {
		return
	}
	from := c.state
	c.state = StateIdle
	c.transcript.StateChange(from.String(), StateIdle.String())
	if !from.Terminal() {
		c.transcript.SessionEnd("stopped", time.Since(c.startedAt))
		c.metrics.SessionEnded("stopped", time.Since(c.startedAt))
		logging.Session("session %s stopped while %s", c.sessionID, from)
	}
	c.publishLocked()
}

// Snapshot returns a consistent copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Updates is the coalescing snapshot feed: a slow consumer always
// receives the latest state, never a backlog.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

// run drives one session start to finish. It is the only goroutine that
// mutates the store while the token stays live.
func (c *Controller) run(tok *Token, req api.AnalysisRequest, tr *logging.Transcript) {
	defer tok.cancel()

	chartCtx, cancel := context.WithTimeout(tok.Context(), c.cfg.ChartTimeout)
	chart, err := c.backend.FetchChart(chartCtx, req)
	cancel()
	if err != nil {
		// No fallback from the chart phase; quota exhaustion still
		// gets its own terminal state.
		c.terminalFailure(tok, api.Classify(err))
		return
	}
	if !c.mutate(tok, func(st *report.Store) { st.SetChart(chart.Raw) }) {
		return
	}
	if !c.setState(tok, StateStreaming) {
		return
	}

	events, errc := c.backend.AnalyzeStream(tok.Context(), req)
	for ev := range events {
		c.applyEvent(tok, ev)
	}
	streamErr := <-errc

	complete, inband, stale := c.streamOutcome(tok)
	switch {
	case stale:
		return
	case complete:
		// Completed already; a trailing error on the same connection
		// must not unseat it or trigger fallback.
		if streamErr != nil {
			logging.SessionWarn("session %s: error after completion ignored: %v", tok.ID(), streamErr)
		}
		c.saveReading(tok)
		return
	}

	if streamErr == nil {
		msg := inband
		if msg == "" {
			msg = "stream ended before completion"
		}
		streamErr = &api.APIError{Kind: api.KindUpstream, Message: msg}
	}
	apiErr := api.Classify(streamErr)
	switch {
	case api.IsRateLimited(apiErr):
		c.rateLimited(tok, apiErr)
	case apiErr.Kind == api.KindCanceled:
		c.silentHalt(tok)
	default:
		c.runFallback(tok, req, tr, apiErr)
	}
}

// applyEvent folds one stream event into the store. Stale tokens and
// terminal states apply nothing.
func (c *Controller) applyEvent(tok *Token, ev stream.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens.Stale(tok) || c.state.Terminal() {
		return
	}

	switch e := ev.(type) {
	case stream.ChartEvent:
		if len(e.Data) > 0 {
			c.store.SetChart(e.Data)
		}
	case stream.SectionEvent:
		c.store.Upsert(e.Key, e.Content, e.Locked, e.Err)
		c.transcript.StreamEvent("section", e.Key)
	case stream.InsightDeltaEvent:
		c.store.AppendInsight(e.Text)
	case stream.InsightLockedEvent:
		c.store.LockInsights(e.Preview)
		c.transcript.StreamEvent("insight_locked", "")
	case stream.CompleteEvent:
		c.completeSeen = true
		c.store.MarkComplete()
		c.completeLocked(c.state)
	case stream.ErrorEvent:
		c.inband = e.Message
		c.transcript.StreamEvent("error", "")
	}
	c.publishLocked()
}

// terminalFailure routes a classified failure straight to its terminal
// state, with no fallback consideration.
func (c *Controller) terminalFailure(tok *Token, apiErr *api.APIError) {
	switch {
	case api.IsRateLimited(apiErr):
		c.rateLimited(tok, apiErr)
	case apiErr.Kind == api.KindCanceled:
		c.silentHalt(tok)
	default:
		c.fail(tok, apiErr)
	}
}

func (c *Controller) fail(tok *Token, apiErr *api.APIError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens.Stale(tok) {
		return
	}
	from := c.state
	c.state = StateFailed
	c.err = apiErr
	c.transcript.StateChange(from.String(), c.state.String())
	c.transcript.SessionEnd("failed", time.Since(c.startedAt))
	c.metrics.SessionEnded("failed", time.Since(c.startedAt))
	logging.SessionError("session %s failed: %v", c.sessionID, apiErr)
	c.publishLocked()
}

func (c *Controller) rateLimited(tok *Token, apiErr *api.APIError) {
	info := api.RateLimitFrom(apiErr)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens.Stale(tok) {
		return
	}
	from := c.state
	c.state = StateRateLimited
	c.err = apiErr
	c.rateLimit = info
	c.transcript.StateChange(from.String(), c.state.String())
	c.transcript.RateLimit(info.Used, info.Limit)
	c.transcript.SessionEnd(c.state.String(), time.Since(c.startedAt))
	c.metrics.SessionEnded("rate_limited", time.Since(c.startedAt))
	logging.Session("session %s rate limited (%d/%d used)", c.sessionID, info.Used, info.Limit)
	c.publishLocked()
}

// silentHalt clears loading without surfacing a failure. It runs when the
// submit context died under a live session; an explicit Stop makes the
// token stale before the cancellation ever surfaces here.
func (c *Controller) silentHalt(tok *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens.Stale(tok) {
		return
	}
	from := c.state
	c.state = StateIdle
	c.transcript.StateChange(from.String(), StateIdle.String())
	c.transcript.SessionEnd("canceled", time.Since(c.startedAt))
	c.metrics.SessionEnded("canceled", time.Since(c.startedAt))
	c.publishLocked()
}

// completeLocked marks the terminal success. Callers hold mu and publish.
func (c *Controller) completeLocked(from State) {
	c.state = StateCompleted
	c.transcript.StateChange(from.String(), c.state.String())
	c.transcript.SessionEnd("completed", time.Since(c.startedAt))
	c.metrics.SessionEnded("completed", time.Since(c.startedAt))
	logging.Session("session %s completed in %s", c.sessionID, time.Since(c.startedAt).Round(time.Millisecond))
}

// mutate applies one store write on behalf of tok. Returns false without
// writing when the token is stale.
func (c *Controller) mutate(tok *Token, f func(st *report.Store)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens.Stale(tok) {
		return false
	}
	f(c.store)
	c.publishLocked()
	return true
}

// setState performs a non-terminal transition on behalf of tok.
func (c *Controller) setState(tok *Token, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens.Stale(tok) {
		return false
	}
	from := c.state
	c.state = to
	c.transcript.StateChange(from.String(), to.String())
	c.publishLocked()
	return true
}

func (c *Controller) streamOutcome(tok *Token) (complete bool, inband string, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completeSeen, c.inband, c.tokens.Stale(tok)
}

// saveReading persists the completed report. History failures are logged,
// never surfaced; the session already succeeded.
func (c *Controller) saveReading(tok *Token) {
	if c.recorder == nil {
		return
	}

	c.mu.Lock()
	if c.tokens.Stale(tok) {
		c.mu.Unlock()
		return
	}
	snap := c.store.Snapshot()
	req := c.request
	id := c.sessionID
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := history.Reading{
		ID:        id,
		CreatedAt: time.Now(),
		Request:   req,
		Chart:     snap.Chart,
		Sections:  snap.Sections,
		Insights:  snap.Insights,
		Locked:    snap.Insights.Locked,
	}
	if err := c.recorder.Save(ctx, r); err != nil {
		logging.SessionWarn("session %s: history save failed: %v", id, err)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	var rl *api.RateLimitInfo
	if c.rateLimit != nil {
		copied := *c.rateLimit
		rl = &copied
	}
	return Snapshot{
		State:     c.state,
		SessionID: c.sessionID,
		Loading:   c.state.Loading(),
		Err:       c.err,
		RateLimit: rl,
		Snapshot:  c.store.Snapshot(),
	}
}

// publishLocked pushes the current snapshot into the coalescing channel,
// displacing an unconsumed older one. Callers hold mu, so only one
// publisher runs at a time and the loop always terminates.
func (c *Controller) publishLocked() {
	snap := c.snapshotLocked()
	for {
		select {
		case c.updates <- snap:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}
