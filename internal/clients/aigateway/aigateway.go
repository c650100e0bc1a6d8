package aigateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/shpitdev/cable-intel/internal/apierr"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/utils"
)

// Telemetry mirrors the AI_SDK_TELEMETRY_* switches: when enabled, gateway
// calls emit spans; inputs/outputs are attached only when their flag is on.
type Telemetry struct {
	Enabled       bool
	RecordInputs  bool
	RecordOutputs bool
}

// GenerateObjectRequest asks the gateway for a single schema-valid JSON
// object at temperature 0.
type GenerateObjectRequest struct {
	Model       string
	SchemaName  string
	Schema      map[string]interface{}
	System      string
	Prompt      string
	Temperature float32
	MaxRetries  int
	Timeout     time.Duration
}

type Client interface {
	GenerateObject(ctx context.Context, req GenerateObjectRequest) (map[string]interface{}, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	telemetry  Telemetry
}

func New(log *logger.Logger, telemetry Telemetry) (Client, error) {
	apiKey, err := utils.RequireEnv("AI_GATEWAY_API_KEY")
	if err != nil {
		return nil, apierr.New(apierr.KindConfig, err)
	}
	baseURL := utils.GetEnv("AI_GATEWAY_BASE_URL", "https://ai-gateway.vercel.sh", log)
	model := utils.GetEnv("AI_GATEWAY_MODEL", "openai/gpt-4.1-mini", log)

	timeoutSec := utils.GetEnvAsInt("AI_GATEWAY_TIMEOUT_SECONDS", 120, log)
	if timeoutSec <= 0 {
		timeoutSec = 120
	}

	return &client{
		log:        log.With("client", "AIGatewayClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		telemetry:  telemetry,
	}, nil
}

// NewWithHTTP is the test seam: no env lookup, caller-provided transport.
func NewWithHTTP(log *logger.Logger, baseURL, apiKey, model string, httpClient *http.Client) Client {
	return &client{
		log:        log.With("client", "AIGatewayClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("ai gateway http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var he *httpError
	if errors.As(err, &he) {
		return isRetryableHTTP(he.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *client) GenerateObject(ctx context.Context, req GenerateObjectRequest) (map[string]interface{}, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	schemaName := req.SchemaName
	if schemaName == "" {
		schemaName = "result"
	}

	ctx, span := c.startSpan(ctx, model, req)
	defer span.End()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	payload := chatRequest{
		Model:       model,
		Temperature: req.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   schemaName,
				Strict: true,
				Schema: req.Schema,
			},
		},
	}

	backoff := 1 * time.Second
	var lastErr error
	for attempt := 0; attempt <= req.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, classifyCtx(ctx.Err())
		}
		obj, err := c.doOnce(ctx, payload)
		if err == nil {
			c.recordOutput(span, obj)
			return obj, nil
		}
		lastErr = err
		if !isRetryableErr(err) || attempt == req.MaxRetries {
			break
		}
		sleepFor := jitterSleep(backoff)
		c.log.Warn("AI gateway request retrying",
			"model", model,
			"attempt", attempt+1,
			"max_retries", req.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return nil, classifyCtx(ctx.Err())
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}
	return nil, classify(lastErr)
}

func (c *client) doOnce(ctx context.Context, payload chatRequest) (map[string]interface{}, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("ai gateway decode error: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("ai gateway returned no choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return nil, apierr.Newf(apierr.KindExtraction, "ai gateway returned non-JSON content: %v", err)
	}
	return obj, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if apierr.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return classifyCtx(err)
	}
	return apierr.New(apierr.KindFetch, err)
}

func classifyCtx(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.Newf(apierr.KindTimeout, "ai gateway call aborted: %v", err)
	}
	return apierr.New(apierr.KindTimeout, err)
}

// startSpan always goes through the global tracer provider; when telemetry is
// disabled the provider is the no-op default, so spans cost nothing.
func (c *client) startSpan(ctx context.Context, model string, req GenerateObjectRequest) (context.Context, oteltrace.Span) {
	tracer := otel.Tracer("cable-intel/aigateway")
	ctx, span := tracer.Start(ctx, "aigateway.generate_object")
	span.SetAttributes(
		attribute.String("ai.model", model),
		attribute.String("ai.schema", req.SchemaName),
		attribute.Float64("ai.temperature", float64(req.Temperature)),
	)
	if c.telemetry.RecordInputs {
		span.SetAttributes(
			attribute.String("ai.system", req.System),
			attribute.String("ai.prompt", truncate(req.Prompt, 4096)),
		)
	}
	return ctx, span
}

func (c *client) recordOutput(span oteltrace.Span, obj map[string]interface{}) {
	if !c.telemetry.Enabled || !c.telemetry.RecordOutputs {
		return
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return
	}
	span.SetAttributes(attribute.String("ai.output", truncate(string(raw), 4096)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
