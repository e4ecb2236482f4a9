package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"baziai/internal/logging"
	"baziai/internal/stream"
)

// eventBuffer absorbs bursts so a slow consumer does not stall the
// network read.
const eventBuffer = 100

// AnalyzeStream starts the streaming analysis and returns the interpreted
// events in wire order. The events channel closes when the stream ends,
// however it ends; the error channel then carries at most one classified
// error. The stream's lifetime is bound to ctx and nothing else, so the
// caller owns cancellation and timeout.
func (c *Client) AnalyzeStream(ctx context.Context, req AnalysisRequest) (<-chan stream.Event, <-chan error) {
	events := make(chan stream.Event, eventBuffer)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		if err := c.streamAnalyze(ctx, req, events); err != nil {
			errc <- Classify(err)
		}
	}()

	return events, errc
}

func (c *Client) streamAnalyze(ctx context.Context, req AnalysisRequest, events chan<- stream.Event) error {
	data, err := json.Marshal(c.withDefaults(req))
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, req.AuthToken)
	httpReq.Header.Set("Accept", "text/event-stream")

	timer := logging.StartTimer(logging.CategoryAPI, "POST /api/analyze")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		timer.Stop()
		return fmt.Errorf("analyze request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		defer timer.Stop()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode == http.StatusTooManyRequests {
			c.metrics.RateLimitHit()
		}
		return statusError(resp.StatusCode, body)
	}

	// The reader blocks in Read; closing the body is the only way to
	// unblock it when ctx fires mid-stream.
	scanDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(scanDone)
		return c.scanEvents(gctx, resp.Body, events)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			resp.Body.Close()
			<-scanDone
		case <-scanDone:
			resp.Body.Close()
		}
		return nil
	})

	err = g.Wait()
	timer.Stop()
	return err
}

// scanEvents drives the framer and interpreter over the response body
// until EOF, a read failure, or cancellation.
func (c *Client) scanEvents(ctx context.Context, body io.Reader, events chan<- stream.Event) error {
	framer := stream.NewLineFramer()
	buf := make([]byte, 32*1024)

	deliver := func(line string) error {
		ev, ok := stream.ParseLine(line)
		if !ok {
			if stream.IsDataLine(line) {
				c.metrics.DroppedFrame()
				logging.TranscriptFrom(ctx).ParseSkip(line)
			}
			return nil
		}
		c.metrics.StreamEvent(stream.Kind(ev))
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, line := range framer.Push(buf[:n]) {
				if err := deliver(line); err != nil {
					return err
				}
			}
		}
		if err == nil {
			continue
		}
		if err == io.EOF {
			if line, ok := framer.Flush(); ok {
				if err := deliver(line); err != nil {
					return err
				}
			}
			return nil
		}
		// A closed body after cancellation surfaces as a read error;
		// report the cancellation, not the plumbing.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("stream read failed: %w", err)
	}
}
