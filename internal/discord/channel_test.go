package discord

import (
	"context"
	"testing"
)

func TestChannelReplyCarriesReference(t *testing.T) {
	chat := &fakeAPI{}
	c := NewChannel(chat, "chan-1", "guild-1")

	if c.ID() != "chan-1" {
		t.Fatalf("ID() = %q", c.ID())
	}
	id, err := c.Reply(context.Background(), "trigger-1", "hello")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if id == "" {
		t.Fatal("Reply returned empty message ID")
	}
	if len(chat.refs) != 1 {
		t.Fatalf("refs = %d, want 1", len(chat.refs))
	}
	ref := chat.refs[0]
	if ref.MessageID != "trigger-1" || ref.ChannelID != "chan-1" || ref.GuildID != "guild-1" {
		t.Errorf("reference = %+v", ref)
	}
}

func TestChannelSendAndTyping(t *testing.T) {
	chat := &fakeAPI{}
	c := NewChannel(chat, "chan-1", "")

	if err := c.SendTyping(context.Background()); err != nil {
		t.Fatalf("SendTyping: %v", err)
	}
	id, err := c.Send(context.Background(), "plain")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id == "" {
		t.Fatal("Send returned empty message ID")
	}
	if chat.typings != 1 {
		t.Errorf("typings = %d, want 1", chat.typings)
	}
	posts := chat.snapshot()
	if len(posts) != 1 || posts[0].content != "plain" || posts[0].replyTo != "" {
		t.Errorf("posts = %+v", posts)
	}
}
