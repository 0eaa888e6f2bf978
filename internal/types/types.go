// README: Shared identifiers used across modules.
package types

import (
	"strconv"

	"github.com/google/uuid"
)

// ID identifies persisted entities (orders, applications, top-ups).
type ID string

// NewID returns a random UUIDv4 string.
func NewID() ID {
	return ID(uuid.NewString())
}

// Valid reports whether v parses as a UUID.
func (id ID) Valid() bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}

// UserID is the messaging platform user id. Private chats share the same value.
type UserID int64

func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

// ChatID addresses a conversation or channel on the messaging platform.
type ChatID int64

// Chat returns the private chat of the user.
func (u UserID) Chat() ChatID {
	return ChatID(u)
}

// MessageRef locates a message that was sent earlier.
type MessageRef struct {
	ChatID    ChatID
	MessageID int
}
