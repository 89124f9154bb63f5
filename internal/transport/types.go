// Package transport defines the chat-protocol boundary. The core only ever
// sees these types; everything Telegram-specific lives in the adapter.
package transport

import (
	"context"

	"relaybot/internal/media"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// adapter-specific markup (Telegram: *telebot.ReplyMarkup)
	ReplyMarkupAdapter any
}

// Adapter is the chat platform surface the core depends on.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	// SendMedia delivers one fetched item with a caption. Falls back to a
	// plain link message when the platform rejects the media URL.
	SendMedia(ctx context.Context, to ChatTarget, item media.Item, caption string, opt *SendOptions) (MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}
