package stream

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/Eliolocin/TomoriBot-sub001/internal/llm"
)

// ToolHandler executes one model-requested function call.
type ToolHandler func(ctx context.Context, call llm.FunctionCall) (llm.FunctionResult, error)

// Tool pairs the declaration advertised to the provider with its local
// handler. Outbound marks tools that reach external services; the
// orchestrator posts an advisory notice before running those.
type Tool struct {
	Decl     llm.ToolDecl
	Handler  ToolHandler
	Outbound bool
}

// ToolRegistry maps function names the model may call onto local handlers.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

func (r *ToolRegistry) Register(t Tool) error {
	if t.Decl.Name == "" {
		return fmt.Errorf("tool registration: empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool registration: %s has no handler", t.Decl.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Decl.Name]; exists {
		return fmt.Errorf("tool registration: %s already registered", t.Decl.Name)
	}
	r.tools[t.Decl.Name] = t
	return nil
}

// Decls returns the advertised declarations in stable name order.
func (r *ToolRegistry) Decls() []llm.ToolDecl {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]llm.ToolDecl, 0, len(r.tools))
	for _, t := range r.tools {
		decls = append(decls, t.Decl)
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}

// IsOutbound reports whether the named tool reaches external services.
// Unknown names are not outbound.
func (r *ToolRegistry) IsOutbound(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name].Outbound
}

// Execute runs the handler for a model-requested call and always produces a
// result to feed back to the model. Unknown functions, handler errors, and
// handler panics all become error-flagged results rather than aborting the
// stream, so the model gets a chance to recover.
func (r *ToolRegistry) Execute(ctx context.Context, call llm.FunctionCall) llm.FunctionResult {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		return llm.FunctionResult{
			CallID:  call.ID,
			Name:    call.Name,
			Output:  map[string]any{"error": fmt.Sprintf("unknown function %q: no such tool is registered", call.Name)},
			IsError: true,
		}
	}

	res, err := runHandler(ctx, tool.Handler, call)
	if err != nil {
		terr := &ToolError{Name: call.Name, Err: err}
		log.Printf("tool %s: %v", call.Name, err)
		return llm.FunctionResult{
			CallID:  call.ID,
			Name:    call.Name,
			Output:  map[string]any{"error": terr.Error()},
			IsError: true,
		}
	}
	if res.CallID == "" {
		res.CallID = call.ID
	}
	if res.Name == "" {
		res.Name = call.Name
	}
	return res
}

func runHandler(ctx context.Context, h ToolHandler, call llm.FunctionCall) (res llm.FunctionResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, call)
}
