package stream

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/Eliolocin/TomoriBot-sub001/internal/textutil"
)

// Channel is the outbound chat surface a stream writes to. SendTyping
// failures are logged and ignored; Send and Reply failures are fatal to the
// stream attempt.
type Channel interface {
	ID() string
	SendTyping(ctx context.Context) error
	Send(ctx context.Context, content string) (messageID string, err error)
	Reply(ctx context.Context, toMessageID, content string) (messageID string, err error)
}

// errStopRequested signals that a user stop was observed mid-delivery. The
// orchestrator consumes the pending request and winds the stream down
// gracefully.
var errStopRequested = errors.New("stream: stop requested")

// sender posts flushed segments to one channel with human-like pacing. One
// instance lives per stream and shares the stream's mutable state with the
// orchestrator invocation that owns it.
type sender struct {
	ch    Channel
	pace  *pacer
	stops *StopRegistry
	state *streamState

	tier      textutil.Tier
	botName   string
	emojiList []string
	emojiOK   bool
	maxLen    int
	replyToID string
}

// deliver cleans, splits, paces, and posts one flushed segment. force skips
// pacing and stop checks for the final best-effort flush of a terminating
// stream. On an observed stop or cancellation it returns the text that never
// went out so the caller can fold it into that final flush.
func (s *sender) deliver(ctx context.Context, segment string, force bool) (unsent string, err error) {
	content := textutil.CleanOutput(segment, s.botName, s.emojiList, s.emojiOK)
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	parts := textutil.ChunkMessage(content, s.tier, s.maxLen)
	for i, part := range parts {
		if !force {
			if interrupted := s.pause(ctx, part); interrupted {
				if err := ctx.Err(); err != nil {
					return strings.Join(parts[i:], ""), err
				}
				return strings.Join(parts[i:], ""), errStopRequested
			}
			// Pre-send check: a stop landing after the typing indicator
			// still skips the send.
			if s.stopPending() {
				return strings.Join(parts[i:], ""), errStopRequested
			}
		}
		if err := s.post(ctx, part); err != nil {
			return strings.Join(parts[i:], ""), err
		}
	}
	return "", nil
}

// pause runs the thinking pause (between consecutive messages of one stream)
// and the typing-delay simulation for the upcoming part. It reports whether
// a stop or cancellation interrupted the wait.
func (s *sender) pause(ctx context.Context, part string) (interrupted bool) {
	if s.state.messagesSent > 0 {
		pauseFor, extended := s.pace.thinkingPause(s.tier)
		if pauseFor > 0 {
			if extended {
				// Stretched pause: re-trigger the indicator partway so the
				// channel doesn't look abandoned.
				if !s.pace.sleepInterruptible(ctx, pauseFor*2/3, s.stopPending) {
					return true
				}
				s.typing(ctx)
				pauseFor /= 3
			}
			if !s.pace.sleepInterruptible(ctx, pauseFor, s.stopPending) {
				return true
			}
		}
	}

	s.typing(ctx)
	if d := s.pace.typingDelay(part, s.tier); d > 0 {
		if !s.pace.sleepInterruptible(ctx, d, s.stopPending) {
			return true
		}
	}
	return false
}

// post writes one part to the channel. The first message of a stream replies
// to the triggering message when one was supplied; everything after is a
// plain post.
func (s *sender) post(ctx context.Context, part string) error {
	if s.tier >= textutil.TierHeavy {
		part = textutil.HumanizeString(part)
	}
	if part == "" {
		return nil
	}

	var err error
	if s.replyToID != "" && !s.state.repliedToTrigger {
		_, err = s.ch.Reply(ctx, s.replyToID, part)
		if err == nil {
			s.state.repliedToTrigger = true
		}
	} else {
		_, err = s.ch.Send(ctx, part)
	}
	if err != nil {
		return &ChannelError{Op: "send", Err: err}
	}
	s.state.messagesSent++
	return nil
}

func (s *sender) typing(ctx context.Context) {
	if err := s.ch.SendTyping(ctx); err != nil {
		log.Printf("channel %s: typing indicator failed: %v", s.ch.ID(), err)
	}
}

func (s *sender) stopPending() bool {
	return s.stops != nil && s.stops.Has(s.ch.ID())
}
