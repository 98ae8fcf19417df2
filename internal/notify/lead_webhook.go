package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hibiken/asynq"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// TaskTypeLeadWebhook identifies queued lead webhook deliveries.
const TaskTypeLeadWebhook = "lead:webhook"

// LeadItem carries only the SKU and quantity of a quoted line item, which is
// all the downstream automation needs.
type LeadItem struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// LeadPayload is the outbound demo-lead event. Attribution key/value pairs are
// flattened to the top level of the JSON object.
type LeadPayload struct {
	Action      string
	Timestamp   time.Time
	LeadID      string
	Name        string
	Trade       string
	Phone       string
	Email       string
	Items       []LeadItem
	Total       float64
	Attribution map[string]string
}

var leadPayloadFields = map[string]struct{}{
	"action": {}, "timestamp": {}, "leadId": {}, "name": {}, "trade": {},
	"phone": {}, "email": {}, "items": {}, "total": {},
}

// MarshalJSON flattens attribution alongside the fixed lead fields. A stored
// attribution key can never shadow a fixed field.
func (p LeadPayload) MarshalJSON() ([]byte, error) {
	items := p.Items
	if items == nil {
		items = []LeadItem{}
	}
	out := map[string]any{
		"action":    p.Action,
		"timestamp": p.Timestamp.UTC().Format(time.RFC3339),
		"leadId":    p.LeadID,
		"name":      p.Name,
		"trade":     p.Trade,
		"phone":     p.Phone,
		"email":     p.Email,
		"items":     items,
		"total":     p.Total,
	}
	for k, v := range p.Attribution {
		if _, reserved := leadPayloadFields[k]; reserved {
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses the flattening performed by MarshalJSON.
func (p *LeadPayload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decodeString := func(key string, dst *string) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		return json.Unmarshal(v, dst)
	}
	for _, pair := range []struct {
		key string
		dst *string
	}{
		{"action", &p.Action},
		{"leadId", &p.LeadID},
		{"name", &p.Name},
		{"trade", &p.Trade},
		{"phone", &p.Phone},
		{"email", &p.Email},
	} {
		if err := decodeString(pair.key, pair.dst); err != nil {
			return err
		}
	}
	if v, ok := raw["timestamp"]; ok {
		var ts string
		if err := json.Unmarshal(v, &ts); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		p.Timestamp = parsed
	}
	if v, ok := raw["items"]; ok {
		if err := json.Unmarshal(v, &p.Items); err != nil {
			return err
		}
	}
	if v, ok := raw["total"]; ok {
		if err := json.Unmarshal(v, &p.Total); err != nil {
			return err
		}
	}
	p.Attribution = map[string]string{}
	for k, v := range raw {
		if _, reserved := leadPayloadFields[k]; reserved {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		p.Attribution[k] = s
	}
	return nil
}

// LeadEnqueuer hands lead payloads to the delivery worker. Enqueueing is the
// only coupling between the demo flow and the network: the flow transitions
// forward whether or not this succeeds.
type LeadEnqueuer struct {
	Client  *asynq.Client
	Queue   string
	Timeout time.Duration
}

// EnqueueLead queues a single delivery attempt. Deliveries are never retried;
// a failed POST is terminal by design.
func (e LeadEnqueuer) EnqueueLead(ctx context.Context, p LeadPayload) error {
	if e.Client == nil {
		return errors.New("notify: task client not configured")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("notify: encode lead payload: %w", err)
	}
	queue := e.Queue
	if queue == "" {
		queue = "leads"
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
	}
	if _, err := e.Client.EnqueueContext(ctx, asynq.NewTask(TaskTypeLeadWebhook, body), opts...); err != nil {
		return fmt.Errorf("notify: enqueue lead webhook: %w", err)
	}
	return nil
}

// Sender POSTs lead payloads to the configured webhook endpoint.
type Sender struct {
	URL    string
	Client *http.Client
}

// Send delivers the payload and returns the response status. The response body
// is discarded; only the status class matters to the caller.
func (s Sender) Send(ctx context.Context, p LeadPayload) (int, error) {
	if err := validateURL(s.URL); err != nil {
		return 0, err
	}
	ctx, span := otel.Tracer("notify.Sender").Start(ctx, "Sender.Send")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", p.LeadID))

	body, err := json.Marshal(p)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	client := s.Client
	if client == nil {
		client = HTTPClient(5000, false)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "flowio-demo-webhooks/1.0")
	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	return nil
}

// HTTPClient returns an HTTP client configured for webhook delivery.
func HTTPClient(timeoutMs int, insecure bool) *http.Client {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = insecureTLSConfig
	}
	return &http.Client{
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		Transport: otelhttp.NewTransport(transport),
	}
}

var insecureTLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
