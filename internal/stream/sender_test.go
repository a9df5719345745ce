package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Eliolocin/TomoriBot-sub001/internal/textutil"
)

func fastTyping() TypingConfig {
	return TypingConfig{
		PerChar:      time.Microsecond,
		MinVisible:   time.Millisecond,
		MaxTyping:    2 * time.Millisecond,
		ThinkingMin:  time.Millisecond,
		ThinkingMax:  2 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
}

func newTestSender(ch Channel, stops *StopRegistry, tier textutil.Tier, replyTo string) *sender {
	return &sender{
		ch:        ch,
		pace:      newPacer(fastTyping()),
		stops:     stops,
		state:     newStreamState(ch.ID()),
		tier:      tier,
		botName:   "Tomori",
		maxLen:    1950,
		replyToID: replyTo,
	}
}

func TestSenderRepliesToTriggerThenSends(t *testing.T) {
	ch := newFakeChannel("c1")
	s := newTestSender(ch, NewStopRegistry(0), textutil.TierNone, "trigger-msg")

	if _, err := s.deliver(context.Background(), "hello\n", false); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := s.deliver(context.Background(), "again\n", false); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(ch.posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(ch.posts))
	}
	if ch.posts[0].replyTo != "trigger-msg" {
		t.Fatalf("first post replyTo = %q, want trigger-msg", ch.posts[0].replyTo)
	}
	if ch.posts[1].replyTo != "" {
		t.Fatalf("second post should be a plain send, got reply to %q", ch.posts[1].replyTo)
	}
	if s.state.messagesSent != 2 {
		t.Fatalf("messagesSent = %d, want 2", s.state.messagesSent)
	}
}

func TestSenderSkipsSendOnPendingStop(t *testing.T) {
	ch := newFakeChannel("c1")
	stops := NewStopRegistry(0)
	s := newTestSender(ch, stops, textutil.TierNone, "")

	stops.RequestStop("c1")
	unsent, err := s.deliver(context.Background(), "should not go out", false)
	if !errors.Is(err, errStopRequested) {
		t.Fatalf("err = %v, want errStopRequested", err)
	}
	if unsent != "should not go out" {
		t.Fatalf("unsent = %q", unsent)
	}
	if len(ch.posts) != 0 {
		t.Fatalf("posts = %d, want 0", len(ch.posts))
	}
}

func TestSenderForceBypassesStopAndPacing(t *testing.T) {
	ch := newFakeChannel("c1")
	stops := NewStopRegistry(0)
	s := newTestSender(ch, stops, textutil.TierMedium, "")

	stops.RequestStop("c1")
	if _, err := s.deliver(context.Background(), "final words", true); err != nil {
		t.Fatalf("forced deliver: %v", err)
	}
	if len(ch.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(ch.posts))
	}
	if ch.typingCount() != 0 {
		t.Fatalf("force mode sent %d typing indicators, want 0", ch.typingCount())
	}
}

func TestSenderReturnsUnsentTailOnMidDeliveryStop(t *testing.T) {
	ch := newFakeChannel("c1")
	stops := NewStopRegistry(0)
	s := newTestSender(ch, stops, textutil.TierNone, "")
	s.maxLen = 5

	// Stop lands while the second part is on the wire: the pre-send check
	// catches it before the third part.
	ch.onSend = func(n int) {
		if n == 1 {
			stops.RequestStop("c1")
		}
	}

	text := "aaaa bbbb cccc"
	unsent, err := s.deliver(context.Background(), text, false)
	if !errors.Is(err, errStopRequested) {
		t.Fatalf("err = %v, want errStopRequested", err)
	}
	if len(ch.posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(ch.posts))
	}
	if got := strings.Join(ch.messages(), "") + unsent; got != text {
		t.Fatalf("sent+unsent = %q, want %q", got, text)
	}
}

func TestSenderHumanizesAtHeavyTier(t *testing.T) {
	ch := newFakeChannel("c1")
	s := newTestSender(ch, NewStopRegistry(0), textutil.TierHeavy, "")

	if _, err := s.deliver(context.Background(), "This Is A TEST.", false); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(ch.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(ch.posts))
	}
	if ch.posts[0].content != "this is a test" {
		t.Fatalf("content = %q, want humanized form", ch.posts[0].content)
	}
}

func TestSenderDropsWhitespaceOnlySegments(t *testing.T) {
	ch := newFakeChannel("c1")
	s := newTestSender(ch, NewStopRegistry(0), textutil.TierNone, "")

	if _, err := s.deliver(context.Background(), "  \n\t", false); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(ch.posts) != 0 {
		t.Fatalf("posts = %d, want 0", len(ch.posts))
	}
}

func TestSenderWrapsPlatformFailure(t *testing.T) {
	ch := newFakeChannel("c1")
	ch.sendErr = errors.New("503 from gateway")
	s := newTestSender(ch, NewStopRegistry(0), textutil.TierNone, "")

	_, err := s.deliver(context.Background(), "hello", false)
	var cerr *ChannelError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *ChannelError", err)
	}
	if cerr.Op != "send" {
		t.Fatalf("Op = %q, want send", cerr.Op)
	}
}

func TestSenderSendsTypingBeforeEachPost(t *testing.T) {
	ch := newFakeChannel("c1")
	s := newTestSender(ch, NewStopRegistry(0), textutil.TierNone, "")

	if _, err := s.deliver(context.Background(), "one\n", false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.deliver(context.Background(), "two\n", false); err != nil {
		t.Fatal(err)
	}
	if ch.typingCount() < 2 {
		t.Fatalf("typing indicators = %d, want at least one per post", ch.typingCount())
	}
}
