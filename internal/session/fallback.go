package session

import (
	"context"

	"baziai/internal/api"
	"baziai/internal/logging"
)

// runFallback replays the retained request on the synchronous endpoint
// after the stream died short of completion. It is reachable only from
// the streaming phase, so one session makes at most one attempt.
func (c *Controller) runFallback(tok *Token, req api.AnalysisRequest, tr *logging.Transcript, cause *api.APIError) {
	if !c.setState(tok, StateFallingBack) {
		return
	}
	c.metrics.Fallback()
	tr.Fallback(cause.Error())
	logging.Session("session %s falling back after: %v", tok.ID(), cause)

	ctx, cancel := context.WithTimeout(tok.Context(), c.cfg.FallbackTimeout)
	doc, err := c.backend.AnalyzeSync(ctx, req)
	cancel()
	if err != nil {
		apiErr := api.Classify(err)
		switch {
		case api.IsRateLimited(apiErr):
			c.rateLimited(tok, apiErr)
		case apiErr.Kind == api.KindCanceled:
			c.silentHalt(tok)
		default:
			// The stream failure stays in the log; the fallback
			// failure is what the consumer can act on.
			c.fail(tok, apiErr)
		}
		return
	}

	c.mu.Lock()
	if c.tokens.Stale(tok) {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.store.ApplyDocument(doc)
	c.completeLocked(from)
	c.publishLocked()
	c.mu.Unlock()

	c.saveReading(tok)
}
