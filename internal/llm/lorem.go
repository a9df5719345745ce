package llm

import (
	"context"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"
)

// LoremProvider is a mock provider that streams lorem ipsum text. It keeps
// the bot usable for development and manual testing without an API key.
type LoremProvider struct {
	generator *loremgen.Lorem
}

func NewLoremProvider() *LoremProvider {
	return &LoremProvider{generator: loremgen.New()}
}

func (p *LoremProvider) Name() string { return "lorem" }

// wordDelay paces the mock stream by model name so typing simulation and
// cancellation can be exercised at different speeds.
func wordDelay(model string) time.Duration {
	switch {
	case strings.Contains(model, "slow"):
		return 250 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 15 * time.Millisecond
	default:
		return 40 * time.Millisecond
	}
}

func (p *LoremProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	delay := wordDelay(req.Model)

	var text strings.Builder
	for i := 0; i < 3; i++ {
		text.WriteString(p.generator.Sentence(6, 14))
		text.WriteString(" ")
	}
	text.WriteString("\n")

	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		for _, word := range strings.Fields(text.String()) {
			select {
			case <-ctx.Done():
				out <- Chunk{Type: ChunkError, Err: ctx.Err()}
				return
			case out <- Chunk{Type: ChunkText, Text: word + " "}:
			}
			time.Sleep(delay)
		}
		out <- Chunk{Type: ChunkText, Text: "\n"}
		out <- Chunk{Type: ChunkDone}
	}()
	return out, nil
}
