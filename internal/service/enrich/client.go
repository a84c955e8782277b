package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mailmirror/internal/model"
	"mailmirror/pkg/apperr"
	"mailmirror/pkg/circuitbreaker"
)

// Annotator derives enrichment metadata for a message. Implementations may
// be language-model backed or rule based.
type Annotator interface {
	Enrich(ctx context.Context, m *model.Message) (*model.EnrichmentMetadata, error)
}

// HTTPAnnotator calls the external annotator service. Calls go through a
// circuit breaker: when the annotator is hard down, jobs fail fast instead
// of each burning the full timeout.
type HTTPAnnotator struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

func NewHTTPAnnotator(baseURL string, timeout time.Duration) *HTTPAnnotator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAnnotator{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
	}
}

type enrichInput struct {
	MessageID string `json:"message_id"`
	Subject   string `json:"subject"`
	From      string `json:"from"`
	Body      string `json:"body"`
}

type enrichOutput struct {
	Summary     string   `json:"summary"`
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	Sentiment   string   `json:"sentiment"`
	ActionItems []string `json:"action_items"`
}

func (c *HTTPAnnotator) Enrich(ctx context.Context, m *model.Message) (*model.EnrichmentMetadata, error) {
	var meta *model.EnrichmentMetadata
	err := c.breaker.Execute(func() error {
		var callErr error
		meta, callErr = c.call(ctx, m)
		return callErr
	})
	if err == circuitbreaker.ErrOpen {
		return nil, apperr.Wrap(apperr.KindEnrichmentFailed, "annotator unavailable", err)
	}
	return meta, err
}

func (c *HTTPAnnotator) call(ctx context.Context, m *model.Message) (*model.EnrichmentMetadata, error) {
	b, err := json.Marshal(enrichInput{
		MessageID: m.ID,
		Subject:   m.Subject,
		From:      m.From,
		Body:      m.Body,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/enrich", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEnrichmentFailed, "annotator call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		// Retryable class of failure
		return nil, apperr.Newf(apperr.KindEnrichmentFailed, "annotator 5xx: %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Newf(apperr.KindEnrichmentFailed, "annotator error: %d", resp.StatusCode)
	}

	var out enrichOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("annotator response decode failed: %w", err)
	}

	return &model.EnrichmentMetadata{
		Summary:     out.Summary,
		Category:    out.Category,
		Priority:    out.Priority,
		Sentiment:   out.Sentiment,
		ActionItems: out.ActionItems,
		Version:     model.EnrichmentVersion,
	}, nil
}
