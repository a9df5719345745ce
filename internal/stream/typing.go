package stream

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Eliolocin/TomoriBot-sub001/internal/textutil"
)

// TypingConfig controls the simulated typing cadence. Zero values fall back
// to the defaults in withDefaults.
type TypingConfig struct {
	PerChar      time.Duration // typing cost per rune of outgoing text
	MinVisible   time.Duration // shortest indicator worth showing
	MaxTyping    time.Duration // hard ceiling per message
	ThinkingMin  time.Duration // pause range between consecutive messages
	ThinkingMax  time.Duration
	ExtendChance float64 // probability of stretching a thinking pause
	PollInterval time.Duration
}

func (c TypingConfig) withDefaults() TypingConfig {
	if c.PerChar <= 0 {
		c.PerChar = 45 * time.Millisecond
	}
	if c.MinVisible <= 0 {
		c.MinVisible = 750 * time.Millisecond
	}
	if c.MaxTyping <= 0 {
		c.MaxTyping = 8 * time.Second
	}
	if c.ThinkingMin <= 0 {
		c.ThinkingMin = 500 * time.Millisecond
	}
	if c.ThinkingMax < c.ThinkingMin {
		c.ThinkingMax = c.ThinkingMin + 1500*time.Millisecond
	}
	if c.ExtendChance <= 0 {
		c.ExtendChance = 0.25
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	return c
}

// pacer produces the delays that make streamed messages read like a person
// typing them. rand.Rand is not safe for concurrent use, so draws are
// serialized.
type pacer struct {
	cfg TypingConfig
	mu  sync.Mutex
	rng *rand.Rand
}

func newPacer(cfg TypingConfig) *pacer {
	return &pacer{
		cfg: cfg.withDefaults(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// typingDelay returns how long to hold the typing indicator before sending
// content. Below the medium humanization tier messages go out immediately.
// Content carrying a code fence gets a raised floor since code reads as
// slower to compose.
func (p *pacer) typingDelay(content string, tier textutil.Tier) time.Duration {
	if tier < textutil.TierMedium {
		return 0
	}
	floor := p.cfg.MinVisible
	if strings.Contains(content, fence) {
		floor = floor * 5 / 4
	}
	d := time.Duration(utf8.RuneCountInString(content)) * p.cfg.PerChar
	if d < floor {
		d = floor
	}
	if d > p.cfg.MaxTyping {
		d = p.cfg.MaxTyping
	}
	return d
}

// thinkingPause draws the pause inserted between consecutive messages of one
// stream. extended reports that the pause was stretched by half again; the
// caller re-triggers the typing indicator partway through such a pause.
func (p *pacer) thinkingPause(tier textutil.Tier) (d time.Duration, extended bool) {
	if tier < textutil.TierMedium {
		return 0, false
	}
	p.mu.Lock()
	d = p.cfg.ThinkingMin
	if span := p.cfg.ThinkingMax - p.cfg.ThinkingMin; span > 0 {
		d += time.Duration(p.rng.Int63n(int64(span)))
	}
	extended = p.rng.Float64() < p.cfg.ExtendChance
	p.mu.Unlock()
	if extended {
		d = d * 3 / 2
	}
	return d, extended
}

// sleepInterruptible sleeps for d, waking at most every PollInterval (or a
// quarter of the remaining time when that is shorter) to re-check ctx and
// the stop condition. It reports whether the full duration elapsed.
func (p *pacer) sleepInterruptible(ctx context.Context, d time.Duration, stopped func() bool) bool {
	deadline := time.Now().Add(d)
	for {
		if ctx.Err() != nil {
			return false
		}
		if stopped != nil && stopped() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		interval := p.cfg.PollInterval
		if q := remaining / 4; q < interval {
			interval = q
		}
		if interval < time.Millisecond {
			interval = time.Millisecond
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}
