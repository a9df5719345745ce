package discord

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Eliolocin/TomoriBot-sub001/internal/config"
	"github.com/Eliolocin/TomoriBot-sub001/internal/llm"
	"github.com/Eliolocin/TomoriBot-sub001/internal/stream"
)

// historyLimit bounds the in-memory context window per channel. Turns past
// the limit fall off; nothing is ever written to disk.
const historyLimit = 30

// stop words accepted as a cancel command when addressed to the bot.
var stopWords = map[string]bool{
	"stop":   true,
	"cancel": true,
	"halt":   true,
}

// Handler turns Discord message-create events into generation streams. One
// instance serves the whole gateway session.
type Handler struct {
	chat     api
	cfg      config.Config
	provider llm.Provider
	orch     *stream.Orchestrator
	locks    *stream.LockTable
	notify   stream.Notifier

	botID   string
	botName string

	mu      sync.Mutex
	history map[string][]llm.Message

	// wg tracks in-flight generation goroutines for shutdown draining.
	wg sync.WaitGroup
}

// NewHandler wires the trigger handler. notify may be nil; busy notices are
// then skipped.
func NewHandler(chat api, cfg config.Config, provider llm.Provider, orch *stream.Orchestrator, locks *stream.LockTable, notify stream.Notifier) *Handler {
	return &Handler{
		chat:     chat,
		cfg:      cfg,
		provider: provider,
		orch:     orch,
		locks:    locks,
		notify:   notify,
		botName:  cfg.BotName,
		history:  make(map[string][]llm.Message),
	}
}

// SetBotUser records the gateway identity. Call after the session is open;
// mention detection needs the bot's user ID.
func (h *Handler) SetBotUser(id, username string) {
	h.botID = id
	if username != "" {
		h.botName = username
	}
}

// HandleMessageCreate is the discordgo event handler. It delegates to Handle
// so tests can drive the trigger path without a session.
func (h *Handler) HandleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	h.Handle(m.Message)
}

// Handle applies the trigger rules to one inbound message and, when the
// message warrants a reply, runs a generation under the channel lock.
func (h *Handler) Handle(m *discordgo.Message) {
	if m == nil || m.Author == nil {
		return
	}
	if m.Author.Bot {
		// Our own posts become assistant turns; other bots are ignored.
		if m.Author.ID == h.botID && m.Content != "" {
			h.record(m.ChannelID, llm.Message{Role: llm.RoleAssistant, Text: m.Content})
		}
		return
	}

	addressed := h.wouldReply(m)
	if addressed && stopWords[h.stripAddressing(m.Content)] {
		h.orch.RequestStop(m.ChannelID)
		return
	}
	if m.Content != "" {
		h.record(m.ChannelID, llm.Message{Role: llm.RoleUser, Text: userLine(m)})
	}
	if !addressed {
		return
	}

	trigger := &stream.PendingTrigger{
		MessageID:  m.ID,
		EnqueuedAt: time.Now().UTC(),
	}
	trigger.Dispatch = func() { h.run(m) }

	res := h.locks.Acquire(m.ChannelID, m.ID, trigger)
	switch {
	case res.Acquired:
		if res.Stolen {
			log.Printf("channel %s: stole stale lock held by message %s", m.ChannelID, res.HolderMessageID)
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.run(m)
		}()
	case res.Queued:
		log.Printf("channel %s: busy with message %s, queued trigger %s", m.ChannelID, res.HolderMessageID, m.ID)
		h.postNotice(m.ChannelID, stream.NoticeBusy)
	}
}

// run executes one generation while holding the channel lock and hands the
// lock to the next queued trigger on the way out.
func (h *Handler) run(m *discordgo.Message) {
	defer func() {
		if next := h.locks.Release(m.ChannelID); next != nil {
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				next.Dispatch()
			}()
		}
	}()

	req := llm.Request{
		Model:       h.cfg.Model,
		System:      h.cfg.SystemPrompt,
		Messages:    h.snapshot(m.ChannelID),
		MaxTokens:   h.cfg.MaxTokens,
		Temperature: h.cfg.Temperature,
	}
	opts := stream.Options{
		Channel:   NewChannel(h.chat, m.ChannelID, m.GuildID),
		ReplyToID: m.ID,
		Tier:      h.cfg.HumanizerTier,
		BotName:   h.botName,
		EmojiList: h.cfg.EmojiList,
		EmojiOK:   h.cfg.EmojiEnabled,
	}

	res, err := h.orch.StreamToChannel(context.Background(), h.provider, req, opts)
	if err != nil {
		log.Printf("channel %s trigger %s: stream failed: %v", m.ChannelID, m.ID, err)
		return
	}
	if res.Status == stream.StatusFunctionCall {
		log.Printf("channel %s trigger %s: unanswered function call dropped", m.ChannelID, m.ID)
	}
}

// Wait blocks until all in-flight generations have finished.
func (h *Handler) Wait() { h.wg.Wait() }

// wouldReply decides whether a message is addressed to the bot: an explicit
// mention, an auto-reply channel, or the bot's name in the text.
func (h *Handler) wouldReply(m *discordgo.Message) bool {
	for _, u := range m.Mentions {
		if u != nil && u.ID == h.botID {
			return true
		}
	}
	for _, id := range h.cfg.AutoReplyChannels {
		if id == m.ChannelID {
			return true
		}
	}
	if h.botName != "" &&
		strings.Contains(strings.ToLower(m.Content), strings.ToLower(h.botName)) {
		return true
	}
	return false
}

// stripAddressing removes mention tokens and the bot's name, leaving the
// bare command text lowercased.
func (h *Handler) stripAddressing(content string) string {
	out := content
	if h.botID != "" {
		out = strings.ReplaceAll(out, "<@"+h.botID+">", " ")
		out = strings.ReplaceAll(out, "<@!"+h.botID+">", " ")
	}
	out = strings.ToLower(out)
	if h.botName != "" {
		out = strings.ReplaceAll(out, strings.ToLower(h.botName), " ")
	}
	return strings.Trim(out, " \t,.!?")
}

func (h *Handler) record(channelID string, msg llm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := append(h.history[channelID], msg)
	if len(turns) > historyLimit {
		turns = turns[len(turns)-historyLimit:]
	}
	h.history[channelID] = turns
}

func (h *Handler) snapshot(channelID string) []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := h.history[channelID]
	out := make([]llm.Message, len(turns))
	copy(out, turns)
	return out
}

func (h *Handler) postNotice(channelID string, kind stream.NoticeKind) {
	if h.notify == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.notify.Notify(ctx, channelID, kind); err != nil {
		log.Printf("channel %s: notice %s failed: %v", channelID, kind, err)
	}
}

// userLine prefixes the author so multi-user channels read coherently in
// the prompt.
func userLine(m *discordgo.Message) string {
	name := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		name = m.Member.Nick
	}
	return name + ": " + m.Content
}
