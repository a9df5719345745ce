package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/Eliolocin/TomoriBot-sub001/internal/stream"
)

// Embed accent colors by severity.
const (
	colorInfo  = 0x5865F2
	colorWarn  = 0xFEE75C
	colorError = 0xED4245
)

// Localizer resolves the user-facing copy for a notice kind. Implementations
// fall back to a sensible default when a locale or kind is unknown.
type Localizer interface {
	Notice(locale string, kind stream.NoticeKind) (title, description string)
}

type noticeCopy struct {
	title string
	desc  string
}

// builtinLocalizer serves a small embedded string table. A fuller catalog
// would live behind the same interface.
type builtinLocalizer struct{}

var noticeTable = map[string]map[stream.NoticeKind]noticeCopy{
	"en": {
		stream.NoticeEmptyResponse:     {"No response", "I came up blank a few times in a row. Try rephrasing?"},
		stream.NoticeGenericError:      {"Something went wrong", "I hit an unexpected error while answering. Please try again."},
		stream.NoticeProhibitedContent: {"Request declined", "I can't help with that request."},
		stream.NoticeContentBlocked:    {"Response blocked", "My reply was blocked by a content filter."},
		stream.NoticeRateLimited:       {"Slow down", "I'm being rate limited right now. Give me a moment and try again."},
		stream.NoticeResponseStopped:   {"Stopped", "Okay, I'll stop there."},
		stream.NoticeTimeout:           {"Timed out", "The response stalled, so I gave up on it."},
		stream.NoticeMaxFunctionCalls:  {"Tool limit reached", "I used as many tools as I'm allowed in one reply."},
		stream.NoticeSearchAdvisory:    {"Searching", "Looking that up, results may take a moment to come back."},
		stream.NoticeBusy:              {"One at a time", "I'm still writing a reply here. I'll get to yours next."},
	},
	"ja": {
		stream.NoticeEmptyResponse:     {"応答なし", "何度か試しましたが返答を生成できませんでした。言い換えてみてください。"},
		stream.NoticeGenericError:      {"エラー", "応答中に予期しないエラーが発生しました。もう一度お試しください。"},
		stream.NoticeProhibitedContent: {"お断りします", "そのリクエストには対応できません。"},
		stream.NoticeContentBlocked:    {"ブロックされました", "返答がコンテンツフィルタにブロックされました。"},
		stream.NoticeRateLimited:       {"少し待ってください", "現在レート制限中です。しばらくしてからお試しください。"},
		stream.NoticeResponseStopped:   {"停止しました", "わかりました、ここでやめます。"},
		stream.NoticeTimeout:           {"タイムアウト", "応答が途中で止まったため中断しました。"},
		stream.NoticeMaxFunctionCalls:  {"ツール上限", "一度の返答で使えるツールの上限に達しました。"},
		stream.NoticeSearchAdvisory:    {"検索中", "調べています。結果まで少しかかるかもしれません。"},
		stream.NoticeBusy:              {"順番にお願いします", "まだ返信を書いています。次にお答えしますね。"},
	},
}

func (builtinLocalizer) Notice(locale string, kind stream.NoticeKind) (string, string) {
	table, ok := noticeTable[locale]
	if !ok {
		table = noticeTable["en"]
	}
	c, ok := table[kind]
	if !ok {
		c = noticeTable["en"][stream.NoticeGenericError]
	}
	return c.title, c.desc
}

// Notifier posts notice embeds to Discord channels. It implements
// stream.Notifier.
type Notifier struct {
	chat   api
	locale string
	loc    Localizer
}

// NewNotifier builds a notifier for the given locale. A nil localizer uses
// the built-in table.
func NewNotifier(chat api, locale string, loc Localizer) *Notifier {
	if loc == nil {
		loc = builtinLocalizer{}
	}
	return &Notifier{chat: chat, locale: locale, loc: loc}
}

func (n *Notifier) Notify(ctx context.Context, channelID string, kind stream.NoticeKind) error {
	title, desc := n.loc.Notice(n.locale, kind)
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       noticeColor(kind),
	}
	_, err := n.chat.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	return err
}

func noticeColor(kind stream.NoticeKind) int {
	switch kind {
	case stream.NoticeGenericError, stream.NoticeProhibitedContent,
		stream.NoticeContentBlocked, stream.NoticeRateLimited:
		return colorError
	case stream.NoticeSearchAdvisory:
		return colorInfo
	default:
		return colorWarn
	}
}
