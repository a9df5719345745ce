package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Eliolocin/TomoriBot-sub001/internal/reliability"
)

const (
	anthropicName      = "anthropic"
	defaultMaxTokens   = 4096
	streamStartRetries = 2
	retryBackoffBase   = 500 * time.Millisecond
	retryBackoffCap    = 4 * time.Second
)

// AnthropicProvider adapts the Anthropic streaming API to the normalized
// Chunk model. All vendor-specific parsing stays inside this file.
type AnthropicProvider struct {
	client *anthropic.Client
}

func NewAnthropicProvider(apiKey string) (*AnthropicProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrInvalidAPIKey
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &client}, nil
}

func (p *AnthropicProvider) Name() string { return anthropicName }

// Stream runs one generation turn and emits normalized chunks. Tool calls
// are surfaced after the vendor stream ends with stop_reason "tool_use",
// once the accumulated message exposes the complete call payloads.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	params, err := buildMessageParams(req)
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		for attempt := 0; ; attempt++ {
			emitted, err := p.streamOnce(ctx, params, out)
			if err == nil {
				return
			}
			// Only pre-first-chunk failures are safe to retry; anything
			// after text reached the consumer would duplicate output.
			if !emitted && attempt < streamStartRetries && IsRetryable(err) {
				wait := reliability.ExponentialBackoff(attempt, retryBackoffBase, retryBackoffCap)
				log.Printf("anthropic stream start failed (attempt %d), retrying in %v: %v", attempt+1, wait, err)
				select {
				case <-ctx.Done():
					out <- Chunk{Type: ChunkError, Err: ctx.Err()}
					return
				case <-time.After(wait):
				}
				continue
			}
			out <- Chunk{Type: ChunkError, Err: err}
			return
		}
	}()
	return out, nil
}

func (p *AnthropicProvider) streamOnce(ctx context.Context, params anthropic.MessageNewParams, out chan<- Chunk) (emitted bool, err error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	message := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return emitted, fmt.Errorf("accumulate stream event: %w", err)
		}

		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok || delta.Delta.Type != "text_delta" || delta.Delta.Text == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return emitted, ctx.Err()
		case out <- Chunk{Type: ChunkText, Text: delta.Delta.Text}:
			emitted = true
		}
	}

	if err := stream.Err(); err != nil {
		return emitted, classifyAnthropicError(err)
	}

	switch string(message.StopReason) {
	case "refusal":
		return emitted, &ProviderError{
			Provider: anthropicName,
			Message:  "model refused to generate",
			Err:      ErrContentBlocked,
		}
	case "tool_use":
		for _, block := range message.Content {
			tu, ok := block.AsAny().(anthropic.ToolUseBlock)
			if !ok {
				continue
			}
			var args map[string]any
			if len(tu.Input) > 0 {
				if err := json.Unmarshal(tu.Input, &args); err != nil {
					log.Printf("anthropic tool call %s: bad input JSON: %v", tu.Name, err)
				}
			}
			out <- Chunk{Type: ChunkFunctionCall, Call: &FunctionCall{ID: tu.ID, Name: tu.Name, Args: args}}
		}
	}

	out <- Chunk{Type: ChunkDone}
	return emitted, nil
}

func buildMessageParams(req Request) (anthropic.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params, nil
}

func convertMessages(messages []Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for i, m := range messages {
		switch {
		case m.Call != nil:
			out = append(out, anthropic.NewAssistantMessage(
				anthropic.NewToolUseBlock(m.Call.ID, m.Call.Args, m.Call.Name)))
		case m.Result != nil:
			payload, err := json.Marshal(m.Result.Output)
			if err != nil {
				return nil, fmt.Errorf("message %d: marshal tool result: %w", i, err)
			}
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.Result.CallID, string(payload), m.Result.IsError)))
		case m.Role == RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	return out, nil
}

func convertTools(decls []ToolDecl) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(decls))
	for _, decl := range decls {
		schema := anthropic.ToolInputSchemaParam{
			Properties:  decl.Parameters["properties"],
			ExtraFields: make(map[string]any),
		}
		if required, ok := decl.Parameters["required"].([]string); ok {
			schema.Required = required
		} else if raw, ok := decl.Parameters["required"].([]any); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		for key, value := range decl.Parameters {
			if key != "type" && key != "properties" && key != "required" {
				schema.ExtraFields[key] = value
			}
		}

		tool := anthropic.ToolUnionParamOfTool(schema, decl.Name)
		if decl.Description != "" {
			if tool.OfTool == nil {
				tool.OfTool = &anthropic.ToolParam{}
			}
			tool.OfTool.Description = anthropic.String(decl.Description)
		}
		out = append(out, tool)
	}
	return out
}

func classifyAnthropicError(err error) error {
	var apierr *anthropic.Error
	if !errors.As(err, &apierr) {
		return &ProviderError{Provider: anthropicName, Message: err.Error(), Err: err}
	}

	msg := apierr.Error()
	lower := strings.ToLower(msg)
	pe := &ProviderError{
		Provider:   anthropicName,
		StatusCode: apierr.StatusCode,
		Message:    msg,
		Retryable:  reliability.IsRetryableHTTPStatus(apierr.StatusCode),
	}

	switch {
	case apierr.StatusCode == 401 || apierr.StatusCode == 403:
		pe.Err = ErrInvalidAPIKey
		pe.Retryable = false
	case apierr.StatusCode == 429:
		pe.Err = ErrRateLimited
	case strings.Contains(lower, "prohibited"):
		pe.Err = ErrProhibitedContent
		pe.Retryable = false
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		pe.Err = ErrContentBlocked
		pe.Retryable = false
	case apierr.StatusCode >= 500:
		pe.Err = ErrProviderUnavailable
	}
	return pe
}
