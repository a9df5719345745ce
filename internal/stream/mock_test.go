package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/Eliolocin/TomoriBot-sub001/internal/llm"
)

// In-package fakes shared by the stream tests.

type fakePost struct {
	content string
	replyTo string
}

type fakeChannel struct {
	mu      sync.Mutex
	id      string
	posts   []fakePost
	typings int

	sendErr error        // injected on every Send/Reply
	onSend  func(n int)  // called with the post count before recording
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id}
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) SendTyping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typings++
	return nil
}

func (c *fakeChannel) Send(ctx context.Context, content string) (string, error) {
	return c.record(content, "")
}

func (c *fakeChannel) Reply(ctx context.Context, toMessageID, content string) (string, error) {
	return c.record(content, toMessageID)
}

func (c *fakeChannel) record(content, replyTo string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.onSend != nil {
		c.onSend(len(c.posts))
	}
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.posts = append(c.posts, fakePost{content: content, replyTo: replyTo})
	return fmt.Sprintf("msg-%d", len(c.posts)), nil
}

func (c *fakeChannel) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.posts))
	for i, p := range c.posts {
		out[i] = p.content
	}
	return out
}

func (c *fakeChannel) typingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typings
}

// scriptProvider replays a fixed chunk script per Stream call. When more
// calls arrive than scripts exist, the last script repeats.
type scriptProvider struct {
	mu      sync.Mutex
	scripts [][]llm.Chunk
	calls   int
	reqs    []llm.Request
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.reqs = append(p.reqs, req)
	if idx >= len(p.scripts) {
		idx = len(p.scripts) - 1
	}
	script := p.scripts[idx]
	p.mu.Unlock()

	out := make(chan llm.Chunk, len(script)+1)
	go func() {
		defer close(out)
		for _, chunk := range script {
			select {
			case <-ctx.Done():
				return
			case out <- chunk:
			}
		}
	}()
	return out, nil
}

func (p *scriptProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func textScript(pieces ...string) []llm.Chunk {
	var script []llm.Chunk
	for _, piece := range pieces {
		script = append(script, llm.Chunk{Type: llm.ChunkText, Text: piece})
	}
	return append(script, llm.Chunk{Type: llm.ChunkDone})
}

// funcProvider adapts a closure, for tests that need precise control over
// chunk timing.
type funcProvider struct {
	fn func(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error)
}

func (p funcProvider) Name() string { return "func" }

func (p funcProvider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	return p.fn(ctx, req)
}

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []NoticeKind
}

func (n *fakeNotifier) Notify(ctx context.Context, channelID string, kind NoticeKind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	return nil
}

func (n *fakeNotifier) notices() []NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NoticeKind(nil), n.kinds...)
}
