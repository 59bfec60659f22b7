package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goverify/goverify/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
)

// Provider posts messages to a generic JSON SMS gateway. The endpoint and
// credentials come from configuration so any aggregator with a
// {"to","message"} contract works.
type Provider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	ins     instrument.Instrumentation
}

func New(baseURL, apiKey string, ins instrument.Instrumentation) *Provider {
	return &Provider{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		ins:     ins,
	}
}

func (p *Provider) Send(ctx context.Context, to, message string) error {
	ctx, span := p.ins.Tracer("delivery.outbound.sms").Start(ctx, "Send")
	defer span.End()

	body, err := json.Marshal(map[string]string{"to": to, "message": message})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("sms: provider returned status %d", resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
