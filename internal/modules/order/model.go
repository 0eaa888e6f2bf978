// README: Order aggregate, categories and status definitions.
package order

import (
	"errors"
	"time"

	"caravan/internal/types"
)

type Category string

const (
	CategoryTaxi         Category = "taxi"
	CategoryParcel       Category = "parcel"
	CategoryCargo        Category = "cargo"
	CategoryFlightTicket Category = "flight_ticket"
	CategoryTrainTicket  Category = "train_ticket"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryTaxi, CategoryParcel, CategoryCargo, CategoryFlightTicket, CategoryTrainTicket:
		return true
	}
	return false
}

// Dispatched categories are broadcast to drivers and accepted for balls.
func (c Category) Dispatched() bool {
	return c == CategoryTaxi || c == CategoryParcel || c == CategoryCargo
}

// Ticket categories are confirmed by moderators instead of drivers.
func (c Category) Ticket() bool {
	return c == CategoryFlightTicket || c == CategoryTrainTicket
}

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusCancelled
}

type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

// Payload holds category-specific fields.
type Payload struct {
	Passengers    int    `json:"passengers,omitempty"`
	Comment       string `json:"comment,omitempty"`
	ParcelContent string `json:"parcel_content,omitempty"`
	CargoWeight   string `json:"cargo_weight,omitempty"`
	CargoPrice    string `json:"cargo_price,omitempty"`
	CargoTerms    string `json:"cargo_terms,omitempty"`
	PassportPhoto string `json:"passport_photo,omitempty"`
}

type Order struct {
	ID            types.ID
	SubmissionKey string
	Category      Category
	RequesterID   types.UserID
	FullName      string
	Phone         string
	From          Location
	To            Location
	TravelDate    string
	Status        Status
	StatusVersion int
	AcceptedBy    *types.UserID
	Cost          int64
	Payload       Payload
	Reason        string
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

// Quantity is the pricing multiplier: passengers for taxi, one otherwise.
func (o *Order) Quantity() int {
	if o.Category == CategoryTaxi && o.Payload.Passengers > 0 {
		return o.Payload.Passengers
	}
	return 1
}

type ActorType string

const (
	ActorRequester ActorType = "requester"
	ActorDriver    ActorType = "driver"
	ActorModerator ActorType = "moderator"
)

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  ActorType
	ActorID    *types.UserID
	CreatedAt  time.Time
}

// AllowedTransitions represents the order state flow as code. Terminal states have no entry.
var AllowedTransitions = map[Status][]Status{
	StatusNone:    {StatusPending},
	StatusPending: {StatusAccepted, StatusRejected, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ErrInvalidState    = errors.New("invalid state transition")
	ErrNotFound        = errors.New("order not found")
	ErrConflict        = errors.New("order state conflict")
	ErrAlreadyAccepted = errors.New("order already accepted")
	ErrBadRequest      = errors.New("bad request")
	ErrNotOwner        = errors.New("order belongs to another user")
)
