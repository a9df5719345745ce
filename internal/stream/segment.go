package stream

import (
	"log"
	"strings"
	"unicode/utf8"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"

	"github.com/Eliolocin/TomoriBot-sub001/internal/textutil"
)

const fence = "```"

// SegmenterConfig bounds how large the accumulation buffer may grow before
// the safety valves force a flush. Limits are in runes.
type SegmenterConfig struct {
	PlainFlushLimit int
	CodeFlushLimit  int
}

func (c SegmenterConfig) withDefaults() SegmenterConfig {
	if c.PlainFlushLimit <= 0 {
		c.PlainFlushLimit = 500
	}
	if c.CodeFlushLimit <= 0 {
		c.CodeFlushLimit = 15000
	}
	return c
}

type flushReason int

const (
	flushNone flushReason = iota
	flushPlainText
	flushCodeBlock
	flushNewline
	flushSentence
	flushOverflow
)

var sentenceTokenizer *sentences.DefaultSentenceTokenizer

func init() {
	t, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		log.Fatalf("sentence tokenizer init failed: %v", err)
	}
	sentenceTokenizer = t
}

// nextSegment inspects the buffer and decides the next safe flush. It
// returns the flushed segment, the retained remainder, whether the remainder
// starts an open code fence, and why the flush happened (flushNone means
// keep accumulating). Callers invoke it repeatedly until flushNone.
//
// Outside a code block the rules apply in priority order: an opening fence
// before any other break point wins, then a newline with no open semantic
// markers, then (heavy humanization only) a sentence-terminal boundary with
// no open markers. An oversized marker-free buffer is force-flushed whole.
func nextSegment(buf string, insideCode bool, tier textutil.Tier, cfg SegmenterConfig) (seg, rest string, nowInside bool, reason flushReason) {
	cfg = cfg.withDefaults()
	if buf == "" {
		return "", "", insideCode, flushNone
	}

	if insideCode {
		// The buffer starts at the opening fence by construction; look for
		// the close past it.
		search, offset := buf, 0
		if strings.HasPrefix(buf, fence) {
			search, offset = buf[len(fence):], len(fence)
		}
		if close := strings.Index(search, fence); close >= 0 {
			cut := offset + close + len(fence)
			return buf[:cut], buf[cut:], false, flushCodeBlock
		}
		if utf8.RuneCountInString(buf) > cfg.CodeFlushLimit {
			// Safety valve: a possibly-broken fence beats unbounded growth.
			return buf, "", false, flushOverflow
		}
		return "", buf, true, flushNone
	}

	fenceIdx := strings.Index(buf, fence)
	nlCut := newlineBreak(buf)
	sbCut := -1
	if tier >= textutil.TierHeavy {
		sbCut = sentenceBreak(buf)
	}

	if fenceIdx >= 0 && (nlCut < 0 || fenceIdx < nlCut) && (sbCut < 0 || fenceIdx < sbCut) {
		if fenceIdx > 0 {
			return buf[:fenceIdx], buf[fenceIdx:], false, flushPlainText
		}
		if close := strings.Index(buf[len(fence):], fence); close >= 0 {
			cut := len(fence) + close + len(fence)
			return buf[:cut], buf[cut:], false, flushCodeBlock
		}
		return "", buf, true, flushNone
	}
	if nlCut >= 0 {
		return buf[:nlCut], buf[nlCut:], false, flushNewline
	}
	if sbCut >= 0 {
		return buf[:sbCut], buf[sbCut:], false, flushSentence
	}
	if !hasOpenMarkers(buf) && utf8.RuneCountInString(buf) > cfg.PlainFlushLimit {
		return buf, "", false, flushOverflow
	}
	return "", buf, false, flushNone
}

// newlineBreak returns the cut index just past the first newline whose
// prefix carries no open semantic markers, or -1.
func newlineBreak(s string) int {
	from := 0
	for {
		i := strings.IndexByte(s[from:], '\n')
		if i < 0 {
			return -1
		}
		pos := from + i
		if !hasOpenMarkers(s[:pos]) {
			return pos + 1
		}
		from = pos + 1
	}
}

// sentenceBreak returns the cut index just past the earliest sentence
// terminator that the tokenizer considers a real boundary (so "Mr." and
// "e.g." don't fire), or just past a full-width Japanese period. The prefix
// must be marker-free and the boundary must not be the very end of the
// buffer, otherwise we keep waiting for more text.
func sentenceBreak(s string) int {
	best := -1
	if sents := sentenceTokenizer.Tokenize(s); len(sents) > 1 {
		if b := len(sents[0].Text); b > 0 && b < len(s) && !hasOpenMarkers(s[:b]) {
			best = b
		}
	}
	if idx := strings.Index(s, "。"); idx >= 0 {
		end := idx + len("。")
		if end < len(s) && !hasOpenMarkers(s[:end]) {
			if best < 0 || end < best {
				best = end
			}
		}
	}
	return best
}

// hasOpenMarkers reports whether the text contains an unbalanced formatting
// or quotation construct that must not be split across messages. Counting
// raw occurrences can misfire on a lone stylistic quote character; that
// matches the long-standing behavior on purpose.
func hasOpenMarkers(s string) bool {
	noFence := strings.ReplaceAll(s, fence, "\x00")
	if strings.Count(noFence, "`")%2 == 1 {
		return true
	}
	if strings.Count(s, `"`)%2 == 1 {
		return true
	}
	if strings.Count(s, "「") != strings.Count(s, "」") {
		return true
	}
	if strings.Count(s, "『") != strings.Count(s, "』") {
		return true
	}
	if strings.Count(s, "(") != strings.Count(s, ")") {
		return true
	}
	bold := strings.Count(noFence, "**")
	if bold%2 == 1 {
		return true
	}
	if (strings.Count(noFence, "*")-bold*2)%2 == 1 {
		return true
	}
	if strings.Count(s, "~~")%2 == 1 {
		return true
	}
	if open := strings.LastIndex(s, "]("); open >= 0 && !strings.Contains(s[open:], ")") {
		return true
	}
	return false
}
