package conversation

import (
	"errors"
	"time"

	"caravan/internal/action"
	"caravan/internal/gateway"
	"caravan/internal/i18n"
)

// Sub is the position inside a multi-part step.
type Sub string

const (
	SubNone    Sub = ""
	SubCountry Sub = "country"
	SubRegion  Sub = "region"
	SubCity    Sub = "city"
	SubManual  Sub = "manual"
	SubYear    Sub = "year"
	SubMonth   Sub = "month"
	SubDay     Sub = "day"
)

// Draft holds the values collected so far, keyed by step field. Location and date
// parts use dotted keys such as "from.country".
type Draft map[string]string

func (d Draft) clone() Draft {
	out := make(Draft, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// SessionState is one user's position in a flow. It is owned by the session store entry
// of that user and dropped on confirm, cancel or expiry.
type SessionState struct {
	Flow          FlowID    `cbor:"flow"`
	Step          int       `cbor:"step"`
	Sub           Sub       `cbor:"sub,omitempty"`
	Draft         Draft     `cbor:"draft"`
	SubmissionKey string    `cbor:"key"`
	Lang          string    `cbor:"lang"`
	StartedAt     time.Time `cbor:"started_at"`
}

func (s SessionState) clone() SessionState {
	s.Draft = s.Draft.clone()
	return s
}

// Input is an inbound event reduced to what the state machine reads.
type Input struct {
	Kind    gateway.EventKind
	Text    string
	FileRef string
	Phone   string
	Action  action.Action
}

func (in Input) pressed(verb string) bool {
	return in.Kind == gateway.EventButton && in.Action.Verb == verb
}

// Effect is an instruction produced by Transition for the engine to carry out.
type Effect interface{ effect() }

// Button is a keyboard entry. Key is localized; Label is shown as written.
type Button struct {
	Key    string
	Label  string
	Action action.Action
}

// Prompt asks for the current step. Error names the validation message shown above it.
type Prompt struct {
	Key     string
	Params  i18n.Params
	Error   string
	Buttons [][]Button
	// Summary asks the engine to append the rendered draft.
	Summary bool
}

// Submit hands a complete draft to the submitter.
type Submit struct {
	Flow          FlowID
	Draft         Draft
	SubmissionKey string
}

// End closes the session without submitting.
type End struct{}

func (Prompt) effect() {}
func (Submit) effect() {}
func (End) effect()    {}

// ErrValidation wraps the message key of a rejected input.
var ErrValidation = errors.New("invalid input")
