// README: In-memory Gateway that records outbound calls for assertions.
package gatewaytest

import (
	"context"
	"strings"
	"sync"

	"caravan/internal/gateway"
	"caravan/internal/types"
)

type Op string

const (
	OpSend   Op = "send"
	OpEdit   Op = "edit"
	OpPhoto  Op = "photo"
	OpDelete Op = "delete"
)

type Call struct {
	Op       Op
	Chat     types.ChatID
	Ref      types.MessageRef
	Text     string
	FileRef  string
	Keyboard gateway.Keyboard
}

// Actions flattens the keyboard tokens of the call.
func (c Call) Actions() []string {
	var out []string
	for _, row := range c.Keyboard {
		for _, b := range row {
			out = append(out, b.Action)
		}
	}
	return out
}

// Recorder implements gateway.Gateway. FailChats makes sends to those chats fail.
type Recorder struct {
	mu        sync.Mutex
	nextID    int
	calls     []Call
	FailChats map[types.ChatID]bool
}

func New() *Recorder {
	return &Recorder{FailChats: map[types.ChatID]bool{}}
}

func (r *Recorder) record(c Call) (types.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat := c.Chat
	if chat == 0 {
		chat = c.Ref.ChatID
	}
	if r.FailChats[chat] {
		return types.MessageRef{}, gateway.Wrap(string(c.Op), errFailing)
	}
	if c.Op == OpSend || c.Op == OpPhoto {
		r.nextID++
		c.Ref = types.MessageRef{ChatID: c.Chat, MessageID: r.nextID}
	}
	r.calls = append(r.calls, c)
	return c.Ref, nil
}

func (r *Recorder) SendMessage(_ context.Context, chat types.ChatID, text string, kb gateway.Keyboard) (types.MessageRef, error) {
	return r.record(Call{Op: OpSend, Chat: chat, Text: text, Keyboard: kb})
}

func (r *Recorder) EditMessage(_ context.Context, ref types.MessageRef, text string, kb gateway.Keyboard) error {
	_, err := r.record(Call{Op: OpEdit, Ref: ref, Text: text, Keyboard: kb})
	return err
}

func (r *Recorder) SendPhoto(_ context.Context, chat types.ChatID, fileRef, caption string, kb gateway.Keyboard) (types.MessageRef, error) {
	return r.record(Call{Op: OpPhoto, Chat: chat, FileRef: fileRef, Text: caption, Keyboard: kb})
}

func (r *Recorder) DeleteMessage(_ context.Context, ref types.MessageRef) error {
	_, err := r.record(Call{Op: OpDelete, Ref: ref})
	return err
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// To returns the calls addressed to chat.
func (r *Recorder) To(chat types.ChatID) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Chat == chat || c.Ref.ChatID == chat {
			out = append(out, c)
		}
	}
	return out
}

// Last returns the most recent call to chat.
func (r *Recorder) Last(chat types.ChatID) (Call, bool) {
	calls := r.To(chat)
	if len(calls) == 0 {
		return Call{}, false
	}
	return calls[len(calls)-1], true
}

// Contains reports whether any call to chat has text containing sub.
func (r *Recorder) Contains(chat types.ChatID, sub string) bool {
	for _, c := range r.To(chat) {
		if strings.Contains(c.Text, sub) {
			return true
		}
	}
	return false
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

type failing struct{}

func (failing) Error() string { return "chat unreachable" }

var errFailing = failing{}
