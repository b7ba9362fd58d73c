package matching

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/office-hours/internal/config"
	"github.com/spec-kit/office-hours/internal/domain"
)

// OpenAIRanker asks an OpenAI-compatible chat completion endpoint to rank the corpus.
type OpenAIRanker struct {
	client *openai.Client
	cfg    config.OracleConfig
	logger *zap.Logger
	tracer trace.Tracer
}

// NewOpenAIRanker builds a ranker from the oracle configuration.
func NewOpenAIRanker(cfg config.OracleConfig, logger *zap.Logger) *OpenAIRanker {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIRanker{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("office-hours/matching"),
	}
}

// Rank sends the prompt and parses the oracle's answer. Transport failures and
// malformed content are both returned as errors; an empty list is not an error.
func (r *OpenAIRanker) Rank(ctx context.Context, query Query, corpus []domain.Ticket) ([]int64, error) {
	ctx, span := r.tracer.Start(ctx, "matching.rank",
		trace.WithAttributes(
			attribute.String("oracle.model", r.cfg.Model),
			attribute.Int("oracle.corpus_size", len(corpus)),
			attribute.String("ticket.type", string(query.Type)),
		),
	)
	defer span.End()

	if timeout := r.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(query, corpus)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    float32(r.cfg.Temperature),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "oracle request failed")
		return nil, fmt.Errorf("oracle request: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: no choices", ErrMalformedResponse)
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty oracle response")
		return nil, err
	}

	ids, err := ParseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed oracle response")
		if errors.Is(err, ErrMalformedResponse) {
			r.logger.Warn("oracle returned malformed content", zap.Error(err), zap.String("model", r.cfg.Model))
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("oracle.returned", len(ids)))
	return ids, nil
}
