// Package llm provides inference provider adapters: a deterministic
// template provider, HTTP adapters for OpenAI-compatible and Anthropic
// APIs, an AWS Bedrock adapter (build tag "bedrock"), plus circuit
// breaker, failover, and registry wrappers. All adapters implement
// domain.InferenceProvider.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"agency-ai/internal/domain"
	"agency-ai/internal/infra/tracer"
)

// maxResponseBody caps how much of a provider response is read (10 MiB).
const maxResponseBody = 10 << 20

// maxErrorDetail caps how much of an error body ends up in error strings.
const maxErrorDetail = 512

// doJSONRequest POSTs a JSON body and returns the raw response body.
// Non-2xx statuses are mapped to domain error sentinels.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// mapHTTPError converts a provider HTTP status to a domain sentinel so
// upstream layers can classify retryability.
func mapHTTPError(status int, body []byte) error {
	detail := truncateDetail(body)
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUnavailable, status, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrInference, status, detail)
	}
}

func truncateDetail(body []byte) string {
	s := string(body)
	if len(s) > maxErrorDetail {
		s = s[:maxErrorDetail] + "..."
	}
	return s
}

// logGenerateCompleted emits the standard per-call debug record.
func logGenerateCompleted(logger *slog.Logger, provider string, resp *domain.InferenceResponse) {
	if logger == nil {
		return
	}
	logger.Debug("inference completed",
		"provider", provider,
		"model", resp.Model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
}

// setUsageAttrs records token usage on the active span.
func setUsageAttrs(span trace.Span, usage domain.TokenUsage) {
	span.SetAttributes(
		tracer.Int64Attr("llm.input_tokens", usage.InputTokens),
		tracer.Int64Attr("llm.output_tokens", usage.OutputTokens),
	)
}
