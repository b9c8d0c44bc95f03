package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"tickerlink/internal/metrics"
	"tickerlink/pkg/errors"
	"tickerlink/pkg/logger"
)

// HTTPProvider calls an external NER service over JSON/HTTP.
// Request: POST {base}/v1/entities {"text": "..."}; response: {"model": "...",
// "entities": [{"text","lemma","label","start","end"}]}.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	model   string
	log     *logger.Logger
}

// NewHTTPProvider creates a new HTTP NER provider
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     logger.Get().With("component", "ner_http"),
	}
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	Model    string   `json:"model"`
	Entities []Entity `json:"entities"`
}

// ExtractEntities returns typed entity spans for the given text
func (p *HTTPProvider) ExtractEntities(ctx context.Context, text string) ([]Entity, error) {
	if text == "" {
		return nil, nil
	}

	entities, err := p.extract(ctx, text)
	metrics.RecordBackendCall("ner", err)
	return entities, err
}

func (p *HTTPProvider) extract(ctx context.Context, text string) ([]Entity, error) {
	payload, err := json.Marshal(extractRequest{Text: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/entities", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		// Wrapped as ErrUnavailable so callers can retry with backoff
		return nil, errors.Wrapf(errors.ErrUnavailable, "ner request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.Wrapf(errors.ErrUnavailable, "ner service returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrNERBackend, "ner service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrUnavailable, "ner response read failed: %v", err)
	}

	var decoded extractResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.Wrapf(errors.ErrNERBackend, "ner response decode failed: %v", err)
	}

	if decoded.Model != "" {
		p.model = decoded.Model
	}

	p.log.Debugf("Extracted %d entities from %d chars", len(decoded.Entities), len(text))
	return decoded.Entities, nil
}

// Name returns the backing model identifier
func (p *HTTPProvider) Name() string {
	if p.model == "" {
		return "ner-http"
	}
	return p.model
}
