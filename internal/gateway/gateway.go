// README: Messaging gateway contract: outbound send/edit/photo/delete and inbound events.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caravan/internal/action"
	"caravan/internal/types"
)

// ErrGateway wraps every platform failure. Callers log it and never roll back committed state.
var ErrGateway = errors.New("messaging gateway error")

// Button is one inline button bound to an action token.
type Button struct {
	Text   string
	Action string
}

// Keyboard is rows of inline buttons. A nil keyboard sends none.
type Keyboard [][]Button

func Row(buttons ...Button) []Button { return buttons }

func Btn(text string, a action.Action) Button {
	return Button{Text: text, Action: a.String()}
}

// Gateway is the outbound half of the messaging platform.
type Gateway interface {
	SendMessage(ctx context.Context, chat types.ChatID, text string, kb Keyboard) (types.MessageRef, error)
	EditMessage(ctx context.Context, ref types.MessageRef, text string, kb Keyboard) error
	SendPhoto(ctx context.Context, chat types.ChatID, fileRef, caption string, kb Keyboard) (types.MessageRef, error)
	DeleteMessage(ctx context.Context, ref types.MessageRef) error
}

// EventKind tells which inbound callback fired.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventPhoto
	EventButton
	EventContact
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventPhoto:
		return "photo"
	case EventButton:
		return "button"
	case EventContact:
		return "contact"
	}
	return "unknown"
}

// InboundEvent is one user interaction. Only the field matching Kind is set.
type InboundEvent struct {
	Kind      EventKind
	UserID    types.UserID
	ChatID    types.ChatID
	// ChatType is the platform's chat kind (private, group, supergroup, channel).
	ChatType  string
	Username  string
	FirstName string
	Text      string
	FileRef   string
	Action    string
	Phone     string
	// Message is the message carrying the pressed button, zero otherwise.
	Message types.MessageRef
	At      time.Time
}

func Text(user types.UserID, text string) InboundEvent {
	return InboundEvent{Kind: EventText, UserID: user, ChatID: user.Chat(), Text: text, At: time.Now()}
}

func Photo(user types.UserID, fileRef string) InboundEvent {
	return InboundEvent{Kind: EventPhoto, UserID: user, ChatID: user.Chat(), FileRef: fileRef, At: time.Now()}
}

func Press(user types.UserID, token string) InboundEvent {
	return InboundEvent{Kind: EventButton, UserID: user, ChatID: user.Chat(), Action: token, At: time.Now()}
}

func Contact(user types.UserID, phone string) InboundEvent {
	return InboundEvent{Kind: EventContact, UserID: user, ChatID: user.Chat(), Phone: phone, At: time.Now()}
}

// Wrap marks err as a gateway failure.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrGateway, err)
}
