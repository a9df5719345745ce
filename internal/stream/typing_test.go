package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Eliolocin/TomoriBot-sub001/internal/textutil"
)

func TestTypingDelayClamps(t *testing.T) {
	p := newPacer(TypingConfig{
		PerChar:    10 * time.Millisecond,
		MinVisible: 200 * time.Millisecond,
		MaxTyping:  2 * time.Second,
	})

	if d := p.typingDelay("hi", textutil.TierMedium); d != 200*time.Millisecond {
		t.Errorf("short text: d = %v, want floor 200ms", d)
	}
	if d := p.typingDelay("0123456789012345678901234567890123456789", textutil.TierMedium); d != 400*time.Millisecond {
		t.Errorf("40 runes: d = %v, want 400ms", d)
	}
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'a'
	}
	if d := p.typingDelay(string(long), textutil.TierMedium); d != 2*time.Second {
		t.Errorf("long text: d = %v, want ceiling 2s", d)
	}
}

func TestTypingDelayRaisedFloorForCode(t *testing.T) {
	p := newPacer(TypingConfig{
		PerChar:    time.Millisecond,
		MinVisible: 400 * time.Millisecond,
		MaxTyping:  5 * time.Second,
	})
	if d := p.typingDelay("```\nx\n```", textutil.TierMedium); d != 500*time.Millisecond {
		t.Errorf("code chunk: d = %v, want 500ms", d)
	}
}

func TestTypingDelayDisabledBelowMediumTier(t *testing.T) {
	p := newPacer(TypingConfig{})
	for _, tier := range []textutil.Tier{textutil.TierNone, textutil.TierLight} {
		if d := p.typingDelay("some text worth a delay", tier); d != 0 {
			t.Errorf("tier %v: d = %v, want 0", tier, d)
		}
	}
	if d, extended := p.thinkingPause(textutil.TierLight); d != 0 || extended {
		t.Errorf("tier light: pause = %v extended=%v, want 0/false", d, extended)
	}
}

func TestThinkingPauseStaysInRange(t *testing.T) {
	cfg := TypingConfig{
		ThinkingMin: 100 * time.Millisecond,
		ThinkingMax: 200 * time.Millisecond,
	}
	p := newPacer(cfg)
	for i := 0; i < 200; i++ {
		d, extended := p.thinkingPause(textutil.TierHeavy)
		max := cfg.ThinkingMax
		if extended {
			max = max * 3 / 2
		}
		if d < cfg.ThinkingMin || d > max {
			t.Fatalf("pause %v outside [%v, %v] (extended=%v)", d, cfg.ThinkingMin, max, extended)
		}
	}
}

func TestSleepInterruptibleCompletes(t *testing.T) {
	p := newPacer(TypingConfig{PollInterval: 5 * time.Millisecond})
	start := time.Now()
	ok := p.sleepInterruptible(context.Background(), 30*time.Millisecond, nil)
	if !ok {
		t.Fatal("sleep reported interruption without one")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("woke after %v, want at least 30ms", elapsed)
	}
}

func TestSleepInterruptibleStopSignal(t *testing.T) {
	p := newPacer(TypingConfig{PollInterval: 5 * time.Millisecond})
	var calls atomic.Int32
	stopped := func() bool {
		return calls.Add(1) >= 3
	}
	start := time.Now()
	ok := p.sleepInterruptible(context.Background(), 5*time.Second, stopped)
	if ok {
		t.Fatal("sleep completed despite stop signal")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stop observed after %v, polling is too slow", elapsed)
	}
}

func TestSleepInterruptibleContextCancel(t *testing.T) {
	p := newPacer(TypingConfig{PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if ok := p.sleepInterruptible(ctx, 5*time.Second, nil); ok {
		t.Fatal("sleep completed despite cancellation")
	}
}
