// README: Structured button action tokens such as accept_taxi_<id>, lang_ru, day_2025-07-14.
package action

import (
	"errors"
	"strings"
)

// Verbs.
const (
	Lang       = "lang"
	Menu       = "menu"
	Back       = "back"
	Cancel     = "cancel"
	Confirm    = "confirm"
	Skip       = "skip"
	Choose     = "pick"
	Country    = "country"
	Region     = "region"
	City       = "city"
	ManualCity = "manualcity"
	Year       = "year"
	Month      = "month"
	Day        = "day"
	Accept     = "accept"
	Approve    = "approve"
	Reject     = "reject"
	Reply      = "reply"
	View       = "view"
	CancelOrd  = "cancelorder"
	Abort      = "abort"
)

// Kinds used in three-part tokens. Kinds never contain an underscore.
const (
	KindTaxi   = "taxi"
	KindParcel = "parcel"
	KindCargo  = "cargo"
	KindDriver = "driver"
	KindTopUp  = "topup"
	KindTicket = "ticket"
)

var ErrMalformed = errors.New("malformed action token")

// maxLen is the platform limit for callback payloads.
const maxLen = 64

// Action is a parsed token. Two-part tokens leave Kind empty.
type Action struct {
	Verb string
	Kind string
	Arg  string
}

func New(verb, arg string) Action { return Action{Verb: verb, Arg: arg} }

func NewKind(verb, kind, arg string) Action { return Action{Verb: verb, Kind: kind, Arg: arg} }

func (a Action) String() string {
	parts := []string{a.Verb}
	if a.Kind != "" {
		parts = append(parts, a.Kind)
	}
	if a.Arg != "" || a.Kind != "" {
		parts = append(parts, a.Arg)
	}
	return strings.Join(parts, "_")
}

// Parse splits a token into verb, optional kind and argument. The argument may contain
// underscores only in the two-part form.
func Parse(token string) (Action, error) {
	if token == "" || len(token) > maxLen {
		return Action{}, ErrMalformed
	}
	parts := strings.SplitN(token, "_", 3)
	if parts[0] == "" {
		return Action{}, ErrMalformed
	}
	switch len(parts) {
	case 1:
		return Action{Verb: parts[0]}, nil
	case 2:
		return Action{Verb: parts[0], Arg: parts[1]}, nil
	default:
		if parts[1] == "" {
			return Action{}, ErrMalformed
		}
		return Action{Verb: parts[0], Kind: parts[1], Arg: parts[2]}, nil
	}
}
