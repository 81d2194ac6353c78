package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/matchloop/internal/domain/model"
)

// Sink receives generated data. The engine service satisfies it directly;
// HTTPSink does so over the REST API.
type Sink interface {
	UpsertProvider(ctx context.Context, p model.ProviderProfile) error
	UpsertClient(ctx context.Context, c model.ClientProfile) error
	RecordOutcome(ctx context.Context, o model.MatchOutcome) (model.MatchOutcome, error)
	AppendInteraction(ctx context.Context, i model.Interaction) (bool, error)
	AppendMilestone(ctx context.Context, m model.Milestone) (bool, error)
}

// HTTPSink posts data to a running engine.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSink creates a sink for the engine at baseURL.
func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// StatusError is a non-2xx answer from the engine.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine answered %d: %s", e.Status, e.Body)
}

// UpsertProvider implements Sink.
func (s *HTTPSink) UpsertProvider(ctx context.Context, p model.ProviderProfile) error {
	return s.do(ctx, http.MethodPut, "/v1/providers/"+url.PathEscape(p.ID), p, nil)
}

// UpsertClient implements Sink.
func (s *HTTPSink) UpsertClient(ctx context.Context, c model.ClientProfile) error {
	return s.do(ctx, http.MethodPut, "/v1/clients/"+url.PathEscape(c.ID), c, nil)
}

// RecordOutcome implements Sink.
func (s *HTTPSink) RecordOutcome(ctx context.Context, o model.MatchOutcome) (model.MatchOutcome, error) {
	var stored model.MatchOutcome
	err := s.do(ctx, http.MethodPost, "/v1/outcomes", o, &stored)
	return stored, err
}

// AppendInteraction implements Sink.
func (s *HTTPSink) AppendInteraction(ctx context.Context, i model.Interaction) (bool, error) {
	var ack ackResponse
	err := s.do(ctx, http.MethodPost, "/v1/interactions", i, &ack)
	return err == nil && !ack.Duplicate, err
}

// AppendMilestone implements Sink.
func (s *HTTPSink) AppendMilestone(ctx context.Context, m model.Milestone) (bool, error) {
	var ack ackResponse
	err := s.do(ctx, http.MethodPost, "/v1/milestones", m, &ack)
	return err == nil && !ack.Duplicate, err
}

func (s *HTTPSink) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
