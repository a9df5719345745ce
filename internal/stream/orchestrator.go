package stream

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Eliolocin/TomoriBot-sub001/internal/llm"
	"github.com/Eliolocin/TomoriBot-sub001/internal/observability"
	"github.com/Eliolocin/TomoriBot-sub001/internal/textutil"
)

// NoticeKind is a semantic category of status message. The orchestrator
// never produces display text; the Notifier maps kinds to localized embeds.
type NoticeKind string

const (
	NoticeEmptyResponse     NoticeKind = "empty_response"
	NoticeGenericError      NoticeKind = "generic_error"
	NoticeProhibitedContent NoticeKind = "prohibited_content"
	NoticeContentBlocked    NoticeKind = "content_blocked"
	NoticeRateLimited       NoticeKind = "rate_limited"
	NoticeResponseStopped   NoticeKind = "response_stopped"
	NoticeTimeout           NoticeKind = "timeout"
	NoticeMaxFunctionCalls  NoticeKind = "max_function_calls"
	NoticeSearchAdvisory    NoticeKind = "search_advisory"
	NoticeBusy              NoticeKind = "busy"
)

// Notifier posts a structured status message to a channel. Implementations
// own localization and presentation; failures are logged by the caller and
// never escalate.
type Notifier interface {
	Notify(ctx context.Context, channelID string, kind NoticeKind) error
}

// Config bounds one orchestrator's streams.
type Config struct {
	Segmenter         SegmenterConfig
	Typing            TypingConfig
	MaxMessageLen     int
	InactivityTimeout time.Duration
	MaxEmptyRetries   int
	EmptyRetryDelay   time.Duration
	MaxFunctionRounds int
}

func (c Config) withDefaults() Config {
	if c.MaxMessageLen <= 0 {
		c.MaxMessageLen = 1950
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 2 * time.Minute
	}
	if c.MaxEmptyRetries <= 0 {
		c.MaxEmptyRetries = 2
	}
	if c.EmptyRetryDelay <= 0 {
		c.EmptyRetryDelay = time.Second
	}
	if c.MaxFunctionRounds <= 0 {
		c.MaxFunctionRounds = 5
	}
	return c
}

// Options carry the per-trigger parameters of one stream.
type Options struct {
	Channel   Channel
	ReplyToID string
	Tier      textutil.Tier
	BotName   string
	EmojiList []string
	EmojiOK   bool
}

// Orchestrator drives provider streams end to end: it segments incoming
// text, paces and posts the pieces, answers function calls, and reports a
// terminal status. One instance serves the whole process; per-stream state
// lives on the stack of each StreamToChannel call.
type Orchestrator struct {
	cfg     Config
	stops   *StopRegistry
	tools   *ToolRegistry
	notify  Notifier
	metrics *observability.Metrics
	pace    *pacer
}

// NewOrchestrator wires an orchestrator. stops and notifier may be shared
// with the trigger layer; tools, notifier, and metrics may be nil.
func NewOrchestrator(cfg Config, stops *StopRegistry, tools *ToolRegistry, notifier Notifier, metrics *observability.Metrics) *Orchestrator {
	cfg = cfg.withDefaults()
	if stops == nil {
		stops = NewStopRegistry(0)
	}
	return &Orchestrator{
		cfg:     cfg,
		stops:   stops,
		tools:   tools,
		notify:  notifier,
		metrics: metrics,
		pace:    newPacer(cfg.Typing),
	}
}

// RequestStop asks the in-flight stream on the channel (if any) to wind
// down at its next check point.
func (o *Orchestrator) RequestStop(channelID string) {
	o.stops.RequestStop(channelID)
	o.metrics.StopRequested()
}

func (o *Orchestrator) HasStopRequest(channelID string) bool { return o.stops.Has(channelID) }

func (o *Orchestrator) ClearStopRequest(channelID string) { o.stops.Clear(channelID) }

func (o *Orchestrator) CleanupOldStopRequests() int { return o.stops.CleanupOld() }

// PendingStops reports how many stop requests are waiting to be observed.
func (o *Orchestrator) PendingStops() int { return o.stops.Count() }

// attemptOutcome is what one provider round produced.
type attemptOutcome struct {
	status Status
	calls  []llm.FunctionCall
	err    error
}

// StreamToChannel runs one full generation against the provider and
// delivers it to opts.Channel. Empty completions are retried from scratch a
// bounded number of times before being reported as a soft degenerate
// outcome. Exactly one status notice is posted for a failed or degenerate
// stream; clean completions post nothing beyond the generated content.
func (o *Orchestrator) StreamToChannel(ctx context.Context, provider llm.Provider, req llm.Request, opts Options) (Result, error) {
	if opts.Channel == nil {
		return Result{Status: StatusError}, errors.New("stream: nil channel")
	}
	if len(req.Tools) == 0 && o.tools != nil {
		req.Tools = o.tools.Decls()
	}

	o.metrics.StreamStarted()
	defer o.metrics.StreamEnded()

	var (
		res       Result
		exhausted bool
		err       error
	)
	for attempt := 0; ; attempt++ {
		res, exhausted, err = o.runGeneration(ctx, provider, req, opts)
		if err != nil || res.Status != StatusCompleted || exhausted || res.MessagesSent > 0 {
			break
		}
		if attempt >= o.cfg.MaxEmptyRetries {
			break
		}
		log.Printf("stream %s: empty completion, retrying (%d/%d)", res.StreamID, attempt+1, o.cfg.MaxEmptyRetries)
		o.metrics.ObserveStreamIndicator("empty_retry")
		stopped := func() bool { return o.stops.Has(opts.Channel.ID()) }
		if !o.pace.sleepInterruptible(ctx, o.cfg.EmptyRetryDelay, stopped) {
			if o.stops.Take(opts.Channel.ID()) {
				res.Status = StatusStopped
			}
			break
		}
	}

	switch {
	case res.Status == StatusStopped:
		o.postNotice(ctx, opts, NoticeResponseStopped)
	case res.Status == StatusTimeout:
		o.postNotice(ctx, opts, NoticeTimeout)
	case res.Status == StatusError:
		o.postNotice(ctx, opts, noticeForError(err))
	case exhausted:
		o.postNotice(ctx, opts, NoticeMaxFunctionCalls)
	case res.Status == StatusCompleted && res.MessagesSent == 0:
		o.postNotice(ctx, opts, NoticeEmptyResponse)
	}

	o.metrics.RecordStream(string(res.Status), res.Duration, res.MessagesSent, res.FunctionCalls)
	if res.Status == StatusError {
		o.metrics.ProviderError(provider.Name())
	}
	return res, err
}

// runGeneration executes one generation end to end, threading function-call
// round trips back into the provider until it yields plain text, errors, or
// exhausts the round budget.
func (o *Orchestrator) runGeneration(ctx context.Context, provider llm.Provider, req llm.Request, opts Options) (Result, bool, error) {
	st := newStreamState(opts.Channel.ID())
	met := newStreamMetrics()
	snd := &sender{
		ch:        opts.Channel,
		pace:      o.pace,
		stops:     o.stops,
		state:     st,
		tier:      opts.Tier,
		botName:   opts.BotName,
		emojiList: opts.EmojiList,
		emojiOK:   opts.EmojiOK,
		maxLen:    o.cfg.MaxMessageLen,
		replyToID: opts.ReplyToID,
	}

	msgs := append([]llm.Message(nil), req.Messages...)

	finish := func(status Status) Result {
		met.endedAt = time.Now()
		met.messages = st.messagesSent
		log.Printf("stream %s channel %s: %s after %s (%d messages, %d chunks, %d function calls)",
			st.id, st.channelID, status, met.duration().Round(time.Millisecond), met.messages, met.chunks, met.functionCalls)
		return Result{
			Status:        status,
			StreamID:      st.id,
			MessagesSent:  st.messagesSent,
			FunctionCalls: met.functionCalls,
			Duration:      met.duration(),
		}
	}

	for round := 0; ; round++ {
		roundReq := req
		roundReq.Messages = msgs
		out := o.runAttempt(ctx, provider, roundReq, st, met, snd)

		switch {
		case out.err != nil:
			met.errors++
			return finish(StatusError), false, out.err
		case out.status == StatusFunctionCall:
			if o.tools == nil {
				res := finish(StatusFunctionCall)
				res.Calls = out.calls
				return res, false, nil
			}
			if round >= o.cfg.MaxFunctionRounds {
				log.Printf("stream %s: function-call round budget exhausted", st.id)
				return finish(StatusCompleted), true, nil
			}
			met.functionCalls += len(out.calls)
			for _, call := range out.calls {
				if o.tools.IsOutbound(call.Name) {
					o.postNotice(ctx, opts, NoticeSearchAdvisory)
				}
				result := o.tools.Execute(ctx, call)
				c := call
				msgs = append(msgs,
					llm.Message{Role: llm.RoleAssistant, Call: &c},
					llm.Message{Role: llm.RoleUser, Result: &result},
				)
			}
		default:
			return finish(out.status), false, nil
		}
	}
}

// runAttempt is the single-attempt executor: one provider stream pulled to
// its end, with stop checks at every chunk boundary and an inactivity timer
// between chunks.
func (o *Orchestrator) runAttempt(ctx context.Context, provider llm.Provider, req llm.Request, st *streamState, met *streamMetrics, snd *sender) attemptOutcome {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := provider.Stream(streamCtx, req)
	if err != nil {
		return attemptOutcome{status: StatusError, err: err}
	}

	snd.typing(ctx)

	timer := time.NewTimer(o.cfg.InactivityTimeout)
	defer timer.Stop()

	var calls []llm.FunctionCall
	for {
		select {
		case <-ctx.Done():
			return attemptOutcome{status: StatusError, err: ctx.Err()}
		case <-timer.C:
			met.timeouts++
			log.Printf("stream %s: no chunk for %s, giving up", st.id, o.cfg.InactivityTimeout)
			o.flushFinal(ctx, st, snd)
			return attemptOutcome{status: StatusTimeout}
		case chunk, ok := <-chunks:
			if !ok {
				o.flushFinal(ctx, st, snd)
				if len(calls) > 0 {
					return attemptOutcome{status: StatusFunctionCall, calls: calls}
				}
				return attemptOutcome{status: StatusCompleted}
			}
			if o.stops.Take(st.channelID) {
				o.flushFinal(ctx, st, snd)
				return attemptOutcome{status: StatusStopped}
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(o.cfg.InactivityTimeout)
			st.lastChunkAt = time.Now()

			switch chunk.Type {
			case llm.ChunkText:
				if met.chunks == 0 {
					o.metrics.ObserveStreamStage("trigger_to_first_chunk", time.Since(met.startedAt))
				}
				met.chunks++
				met.characters += len(chunk.Text)
				st.buffer += chunk.Text
				if out := o.drain(ctx, st, met, snd); out != nil {
					return *out
				}
			case llm.ChunkFunctionCall:
				if chunk.Call != nil {
					calls = append(calls, *chunk.Call)
				}
			case llm.ChunkError:
				o.flushFinal(ctx, st, snd)
				return attemptOutcome{status: StatusError, err: chunk.Err}
			case llm.ChunkDone:
				o.flushFinal(ctx, st, snd)
				if len(calls) > 0 {
					return attemptOutcome{status: StatusFunctionCall, calls: calls}
				}
				return attemptOutcome{status: StatusCompleted}
			}
		}
	}
}

// drain runs the segmenter over the buffer until it stops producing flush
// decisions, delivering each flushed segment as it goes. A non-nil outcome
// terminates the attempt.
func (o *Orchestrator) drain(ctx context.Context, st *streamState, met *streamMetrics, snd *sender) *attemptOutcome {
	for {
		seg, rest, inside, reason := nextSegment(st.buffer, st.insideCodeBlock, snd.tier, o.cfg.Segmenter)
		st.buffer = rest
		st.insideCodeBlock = inside
		st.openMarkers = !inside && hasOpenMarkers(rest)
		if reason == flushNone {
			return nil
		}
		if reason == flushOverflow {
			log.Printf("stream %s: buffer grew past its flush limit, forcing %d bytes out", st.id, len(seg))
		}

		unsent, err := snd.deliver(ctx, seg, false)
		switch {
		case errors.Is(err, errStopRequested):
			o.stops.Take(st.channelID)
			st.buffer = unsent + st.buffer
			o.flushFinal(ctx, st, snd)
			return &attemptOutcome{status: StatusStopped}
		case err != nil:
			met.errors++
			return &attemptOutcome{status: StatusError, err: err}
		}
		if met.messages == 0 && st.messagesSent > 0 {
			o.metrics.ObserveStreamStage("trigger_to_first_message", time.Since(met.startedAt))
		}
		met.messages = st.messagesSent
	}
}

// flushFinal force-delivers whatever is left in the buffer as a last
// best-effort message, bypassing pacing and stop checks. Incomplete
// structures go out as-is rather than being dropped.
func (o *Orchestrator) flushFinal(ctx context.Context, st *streamState, snd *sender) {
	if st.buffer == "" {
		return
	}
	if st.insideCodeBlock || hasOpenMarkers(st.buffer) {
		log.Printf("stream %s: flushing incomplete buffer (%d bytes)", st.id, len(st.buffer))
	}
	buf := st.buffer
	st.buffer = ""
	st.insideCodeBlock = false
	if _, err := snd.deliver(ctx, buf, true); err != nil {
		log.Printf("stream %s: final flush failed: %v", st.id, err)
	}
}

func (o *Orchestrator) postNotice(ctx context.Context, opts Options, kind NoticeKind) {
	if o.notify == nil {
		return
	}
	if err := o.notify.Notify(ctx, opts.Channel.ID(), kind); err != nil {
		log.Printf("notice %s for channel %s failed: %v", kind, opts.Channel.ID(), err)
	}
}

// noticeForError maps a terminal error onto the notice the user sees.
func noticeForError(err error) NoticeKind {
	switch {
	case errors.Is(err, llm.ErrProhibitedContent):
		return NoticeProhibitedContent
	case errors.Is(err, llm.ErrContentBlocked):
		return NoticeContentBlocked
	case errors.Is(err, llm.ErrRateLimited):
		return NoticeRateLimited
	case errors.Is(err, ErrInactivityTimeout):
		return NoticeTimeout
	default:
		return NoticeGenericError
	}
}
