package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ChunkType tags the variants of a normalized stream chunk.
type ChunkType string

const (
	ChunkText         ChunkType = "text"
	ChunkFunctionCall ChunkType = "function_call"
	ChunkError        ChunkType = "error"
	ChunkDone         ChunkType = "done"
)

// Chunk is a provider-neutral stream event. Exactly one payload field is set
// according to Type. Chunks are consumed immediately and never stored.
type Chunk struct {
	Type ChunkType
	Text string
	Call *FunctionCall
	Err  error
}

// FunctionCall is a tool invocation the model requested.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// FunctionResult is the structured outcome fed back to the model.
type FunctionResult struct {
	CallID  string
	Name    string
	Output  map[string]any
	IsError bool
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn. Text turns carry Text; tool round trips
// use Call (assistant side) and Result (user side) instead.
type Message struct {
	Role   Role
	Text   string
	Call   *FunctionCall
	Result *FunctionResult
}

// ToolDecl declares a callable tool to the provider. Parameters is a JSON
// Schema object in the common function-calling shape.
type ToolDecl struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is the normalized generation request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDecl
	MaxTokens   int
	Temperature float64
}

// Provider streams normalized chunks for a request. The returned channel is
// closed when the stream ends; a terminal ChunkDone or ChunkError precedes
// the close on well-behaved providers.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Config controls provider construction.
type Config struct {
	Mode            string
	AnthropicAPIKey string
}

// NewProvider picks a provider implementation by mode. "auto" prefers the
// real vendor when a key is configured and falls back to the lorem mock.
func NewProvider(cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, errors.New("anthropic API key is required for anthropic mode")
		}
		return NewAnthropicProvider(cfg.AnthropicAPIKey)
	case "lorem", "mock":
		return NewLoremProvider(), nil
	case "auto":
		if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
			return NewAnthropicProvider(cfg.AnthropicAPIKey)
		}
		return NewLoremProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported provider mode %q", cfg.Mode)
	}
}
