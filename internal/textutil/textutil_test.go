package textutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseTier(t *testing.T) {
	cases := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"none", TierNone, false},
		{"", TierNone, false},
		{"light", TierLight, false},
		{"Medium", TierMedium, false},
		{"HEAVY", TierHeavy, false},
		{"max", TierHeavy, false},
		{"extreme", TierNone, true},
	}
	for _, tc := range cases {
		got, err := ParseTier(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTier(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTier(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTier(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCleanOutputStripsSelfPrefix(t *testing.T) {
	got := CleanOutput("Tomori: hello there", "Tomori", nil, false)
	if got != "hello there" {
		t.Fatalf("CleanOutput() = %q, want %q", got, "hello there")
	}

	got = CleanOutput("tomori： case and fullwidth colon", "Tomori", nil, false)
	if got != "case and fullwidth colon" {
		t.Fatalf("CleanOutput() = %q", got)
	}

	// No prefix means no change.
	got = CleanOutput("Tomori is my name", "Tomori", nil, false)
	if got != "Tomori is my name" {
		t.Fatalf("CleanOutput() = %q", got)
	}
}

func TestCleanOutputEmojiAllowlist(t *testing.T) {
	allow := []string{"wave", "sparkle"}

	got := CleanOutput("hi <:wave:123456> there <:evil:999>", "", allow, true)
	if got != "hi <:wave:123456> there" {
		t.Fatalf("CleanOutput() = %q", got)
	}

	got = CleanOutput("hi :wave: and :unknown_face:", "", allow, true)
	if got != "hi :wave: and unknown_face" {
		t.Fatalf("CleanOutput() = %q", got)
	}

	// Disabled: custom tokens removed, shortcodes flattened.
	got = CleanOutput("hi <:wave:123456> :wave:", "", allow, false)
	if got != "hi  wave" {
		t.Fatalf("CleanOutput() = %q", got)
	}
}

func TestHumanizeString(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Hello There.", "hello there"},
		{"Look Out!", "look out"},
		{"Really?", "really?"},
		{"Wait...", "wait..."},
	}
	for _, tc := range cases {
		if got := HumanizeString(tc.in); got != tc.want {
			t.Errorf("HumanizeString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHumanizeStringPreservesCode(t *testing.T) {
	in := "Run THIS:\n```Go\nfmt.Println(\"OK\")\n```"
	got := HumanizeString(in)
	if !strings.Contains(got, "fmt.Println(\"OK\")") {
		t.Fatalf("code content was altered: %q", got)
	}
	if !strings.HasPrefix(got, "run this:") {
		t.Fatalf("plain text not lowercased: %q", got)
	}
}

func TestChunkMessageShortTextPassesThrough(t *testing.T) {
	got := ChunkMessage("short message", TierNone, 1950)
	if len(got) != 1 || got[0] != "short message" {
		t.Fatalf("ChunkMessage() = %#v", got)
	}
	if got := ChunkMessage("   ", TierNone, 1950); got != nil {
		t.Fatalf("blank input should produce no chunks, got %#v", got)
	}
}

func TestChunkMessageRespectsMaxLen(t *testing.T) {
	text := strings.Repeat("word and more text here. ", 200)
	chunks := ChunkMessage(text, TierNone, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	var rebuilt strings.Builder
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 100 {
			t.Errorf("chunk %d has %d runes, max 100", i, n)
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != text {
		t.Fatalf("chunks do not reassemble the input")
	}
}

func TestChunkMessageKeepsFittingCodeBlockIntact(t *testing.T) {
	code := "```go\nfunc main() {\n\tprintln(1)\n}\n```"
	text := strings.Repeat("intro text. ", 20) + code + strings.Repeat(" outro text.", 20)
	chunks := ChunkMessage(text, TierNone, 120)
	found := false
	for _, c := range chunks {
		if c == code {
			found = true
		}
		if strings.Count(c, "```")%2 != 0 {
			t.Errorf("chunk splits a fence: %q", c)
		}
	}
	if !found {
		t.Fatalf("code block was not kept as one chunk: %#v", chunks)
	}
}

func TestChunkMessageHeavyTierPrefersSentences(t *testing.T) {
	text := strings.Repeat("This is one sentence. ", 30)
	chunks := ChunkMessage(text, TierHeavy, 80)
	for i, c := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(strings.TrimRight(c, " "), ".") {
			t.Errorf("chunk %d does not end on a sentence: %q", i, c)
		}
	}
}
