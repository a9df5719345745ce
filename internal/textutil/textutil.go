package textutil

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Tier is the configured humanization intensity. Higher tiers enable typing
// simulation, sentence-level pacing, and lowercase "humanized" output.
type Tier int

const (
	TierNone Tier = iota
	TierLight
	TierMedium
	TierHeavy
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierLight:
		return "light"
	case TierMedium:
		return "medium"
	case TierHeavy:
		return "heavy"
	default:
		return "unknown"
	}
}

// ParseTier maps a config string to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return TierNone, nil
	case "light", "low":
		return TierLight, nil
	case "medium", "mid":
		return TierMedium, nil
	case "heavy", "high", "max":
		return TierHeavy, nil
	default:
		return TierNone, fmt.Errorf("invalid humanizer tier %q (expected none|light|medium|heavy)", s)
	}
}

const codeFence = "```"

var (
	customEmojiPattern = regexp.MustCompile(`<a?:([A-Za-z0-9_]+):\d+>`)
	shortcodePattern   = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]+):`)
)

// CleanOutput strips artifacts the model tends to emit before text reaches
// the channel: a leading "BotName:" self-reference and emoji placeholders
// that are not on the server's allowlist.
func CleanOutput(text, botName string, emojiList []string, emojiEnabled bool) string {
	out := text

	if name := strings.TrimSpace(botName); name != "" {
		prefix := regexp.MustCompile(`(?i)^\s*` + regexp.QuoteMeta(name) + `\s*[:：]\s*`)
		out = prefix.ReplaceAllString(out, "")
	}

	allowed := make(map[string]bool, len(emojiList))
	for _, e := range emojiList {
		allowed[strings.Trim(strings.TrimSpace(e), ":")] = true
	}

	out = customEmojiPattern.ReplaceAllStringFunc(out, func(tok string) string {
		name := customEmojiPattern.FindStringSubmatch(tok)[1]
		if emojiEnabled && allowed[name] {
			return tok
		}
		return ""
	})

	out = shortcodePattern.ReplaceAllStringFunc(out, func(tok string) string {
		name := strings.Trim(tok, ":")
		if emojiEnabled && allowed[name] {
			return tok
		}
		// Unknown or disabled shortcode: drop the colons, keep the word.
		return name
	})

	return strings.TrimRight(out, " \t")
}

// HumanizeString applies the heavy-tier transform: lowercase everything
// outside code spans and drop the trailing terminal period or exclamation
// mark. Question marks survive because dropping them changes meaning.
func HumanizeString(text string) string {
	parts := splitPreservingCode(text)
	var b strings.Builder
	b.Grow(len(text))
	for _, p := range parts {
		if p.code {
			b.WriteString(p.text)
			continue
		}
		b.WriteString(strings.ToLower(p.text))
	}
	out := b.String()

	trimmed := strings.TrimRight(out, " \t\n")
	if strings.HasSuffix(trimmed, ".") && !strings.HasSuffix(trimmed, "..") {
		return strings.TrimSuffix(trimmed, ".")
	}
	if strings.HasSuffix(trimmed, "!") {
		return strings.TrimSuffix(trimmed, "!")
	}
	return out
}

// ChunkMessage splits text into pieces no longer than maxLen runes, keeping
// fenced code blocks intact when they fit and preferring paragraph, newline,
// sentence, then word boundaries for plain text. At TierHeavy sentence
// boundaries win over raw newlines so each piece reads like one utterance.
func ChunkMessage(text string, tier Tier, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = 1950
	}
	if utf8.RuneCountInString(text) <= maxLen {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	for _, p := range splitPreservingCode(text) {
		if p.code {
			chunks = append(chunks, hardSplit(p.text, maxLen)...)
			continue
		}
		chunks = append(chunks, splitPlain(p.text, tier, maxLen)...)
	}

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

type codePart struct {
	text string
	code bool
}

// splitPreservingCode partitions text into alternating plain and fenced-code
// parts. An unterminated fence swallows the rest of the text as code.
func splitPreservingCode(text string) []codePart {
	var parts []codePart
	rest := text
	for {
		start := strings.Index(rest, codeFence)
		if start < 0 {
			if rest != "" {
				parts = append(parts, codePart{text: rest})
			}
			return parts
		}
		if start > 0 {
			parts = append(parts, codePart{text: rest[:start]})
		}
		rest = rest[start:]
		end := strings.Index(rest[len(codeFence):], codeFence)
		if end < 0 {
			parts = append(parts, codePart{text: rest, code: true})
			return parts
		}
		cut := len(codeFence) + end + len(codeFence)
		parts = append(parts, codePart{text: rest[:cut], code: true})
		rest = rest[cut:]
	}
}

func splitPlain(text string, tier Tier, maxLen int) []string {
	var chunks []string
	rest := text
	for utf8.RuneCountInString(rest) > maxLen {
		window := runePrefix(rest, maxLen)
		cut := -1

		if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
			cut = idx + 2
		} else if tier >= TierHeavy {
			if idx := lastSentenceEnd(window); idx > 0 {
				cut = idx
			}
		}
		if cut <= 0 {
			if idx := strings.LastIndexByte(window, '\n'); idx > 0 {
				cut = idx + 1
			}
		}
		if cut <= 0 {
			if idx := lastSentenceEnd(window); idx > 0 {
				cut = idx
			}
		}
		if cut <= 0 {
			if idx := strings.LastIndexByte(window, ' '); idx > 0 {
				cut = idx + 1
			}
		}
		if cut <= 0 {
			cut = len(window)
		}

		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// lastSentenceEnd returns the byte index just past the last sentence
// terminator followed by whitespace, or -1.
func lastSentenceEnd(s string) int {
	best := -1
	for i := 0; i < len(s)-1; i++ {
		c := s[i]
		if (c == '.' || c == '!' || c == '?') && (s[i+1] == ' ' || s[i+1] == '\n') {
			best = i + 1
		}
	}
	if idx := strings.LastIndex(s, "。"); idx >= 0 {
		if end := idx + len("。"); end > best && end < len(s) {
			best = end
		}
	}
	return best
}

func hardSplit(text string, maxLen int) []string {
	var chunks []string
	rest := text
	for utf8.RuneCountInString(rest) > maxLen {
		cut := len(runePrefix(rest, maxLen))
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

func runePrefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
