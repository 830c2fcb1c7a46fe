// Package loki pushes stage-event log lines to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Label names must match [a-zA-Z_:][a-zA-Z0-9_:]*; values are sanitized to
// the same alphabet to keep streams well-formed.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Client pushes log entries to a Loki instance.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient returns a Client for the Loki base URL (e.g. http://localhost:3100).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // [timestamp_ns, line] pairs
}

// eventFields is the subset of a stage event used for labels and timestamp.
type eventFields struct {
	LectureID string `json:"lectureId"`
	Action    string `json:"action"`
	Stage     string `json:"stage"`
	CreatedAt string `json:"createdAt"`
}

// PushEventJSON labels and pushes one stage event (a Kafka message value).
// A line that does not parse as an event is still pushed, with the current
// time and no extra labels.
func (c *Client) PushEventJSON(ctx context.Context, rawJSON []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var fields eventFields
	if err := json.Unmarshal(rawJSON, &fields); err == nil {
		if fields.LectureID != "" {
			labels["lecture_id"] = fields.LectureID
		}
		if fields.Action != "" {
			labels["action"] = fields.Action
		}
		if fields.Stage != "" {
			labels["stage"] = fields.Stage
		}
		if t, err := time.Parse(time.RFC3339Nano, fields.CreatedAt); err == nil {
			ts = t
		}
	}
	return c.Push(ctx, ts, string(rawJSON), labels)
}

// Push sends a single log line with the given event time and stream labels.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	if c.baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := map[string]string{"job": "attendance"}
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			streamLabels[k] = s
		}
	}
	payload, err := json.Marshal(pushRequest{
		Streams: []stream{{
			Stream: streamLabels,
			Values: [][]string{{fmt.Sprintf("%d", timestamp.UnixNano()), line}},
		}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
