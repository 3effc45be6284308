// Package ai wraps the Anthropic Messages API for receipt extraction and
// questions about a user's expenses.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"boringexpenses/pkg/telemetry"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	DefaultModel   = "claude-3-5-haiku-latest"
	maxRetries     = 3
	maxElapsed     = 30 * time.Second
	initialBackoff = time.Second
)

var (
	// ErrNotConfigured means no API key was provided; the features are off.
	ErrNotConfigured = errors.New("AI features are not configured")
	ErrEmptyResponse = errors.New("empty response from AI model")
)

type Client struct {
	api        anthropic.Client
	model      anthropic.Model
	log        *zap.Logger
	newBackOff func() backoff.BackOff
}

func New(apiKey, model string, log *zap.Logger, opts ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = DefaultModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &Client{
		api:   anthropic.NewClient(opts...),
		model: anthropic.Model(model),
		log:   log,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = initialBackoff
			bo.MaxElapsedTime = maxElapsed
			return backoff.WithMaxRetries(bo, maxRetries)
		},
	}, nil
}

// complete sends params and returns the text of the first content block.
// Rate limits, server errors and timeouts are retried with backoff.
func (c *Client) complete(ctx context.Context, operation string, params anthropic.MessageNewParams) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(attribute.String("ai.model", string(c.model)), attribute.String("ai.operation", operation))
	params.Model = c.model

	start := time.Now()
	attempts := 0
	var text string
	err := backoff.Retry(func() error {
		attempts++
		msg, err := c.api.Messages.New(ctx, params)
		if err != nil {
			if isRetryable(err) {
				c.log.Warn("anthropic call failed, retrying", zap.String("operation", operation), zap.Int("attempt", attempts), zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		span.SetAttributes(
			attribute.Int64("ai.input_tokens", msg.Usage.InputTokens),
			attribute.Int64("ai.output_tokens", msg.Usage.OutputTokens),
		)
		for _, block := range msg.Content {
			if block.Type == "text" && block.Text != "" {
				text = block.Text
				return nil
			}
		}
		return backoff.Permanent(ErrEmptyResponse)
	}, backoff.WithContext(c.newBackOff(), ctx))
	span.SetAttributes(attribute.Int("ai.attempts", attempts))
	telemetry.RecordAIRequest(ctx, operation, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%s: %w", operation, err)
	}
	return text, nil
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
