package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/pkg/protocol"
	"github.com/wouterc/sagsfiler/pkg/retry"
)

// Watch subscribes to the change stream of one case. Events arrive on the
// first channel until ctx is cancelled; connection failures are reported on
// the second channel (non-blocking) and the stream reconnects with backoff.
func (c *Client) Watch(ctx context.Context, caseID string, backoff retry.Config) (<-chan protocol.CaseEvent, <-chan error) {
	events := make(chan protocol.CaseEvent, 100)
	errs := make(chan error, 1)

	go c.watchLoop(ctx, caseID, retry.NewBackoff(backoff), events, errs)

	return events, errs
}

func (c *Client) watchLoop(ctx context.Context, caseID string, b *retry.Backoff, events chan<- protocol.CaseEvent, errs chan<- error) {
	defer close(events)
	defer close(errs)

	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := c.stream(ctx, caseID, events)
		if ctx.Err() != nil {
			return
		}
		if connected {
			b.Reset()
		}

		select {
		case errs <- err:
		default:
		}
		c.log.Warn("event stream interrupted", zap.String("case", caseID), zap.Error(err))

		if b.Wait(ctx) != nil {
			return
		}
	}
}

// stream reads one connection until it ends. connected reports whether the
// server accepted the subscription.
func (c *Client) stream(ctx context.Context, caseID string, events chan<- protocol.CaseEvent) (connected bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.caseURL(caseID, "events", nil), nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.do("watch", req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	c.log.Info("event stream connected", zap.String("case", caseID))

	scanner := bufio.NewScanner(resp.Body)
	var eventType, data string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data != "" {
				var ev protocol.CaseEvent
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					c.log.Debug("skipping malformed event", zap.String("data", data))
				} else {
					if ev.Type == "" {
						ev.Type = eventType
					}
					select {
					case events <- ev:
					case <-ctx.Done():
						return true, ctx.Err()
					}
				}
			}
			eventType, data = "", ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return true, fmt.Errorf("read: %w", err)
	}
	return true, fmt.Errorf("connection closed")
}
