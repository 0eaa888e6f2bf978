// README: Moderated requests: driver applications, ball top-ups and ticket orders.
package moderation

import (
	"errors"
	"time"

	"caravan/internal/modules/user"
	"caravan/internal/types"
)

type Kind string

const (
	KindDriverApplication Kind = "driver"
	KindTopUp             Kind = "topup"
	KindTicket            Kind = "ticket"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

const (
	DirectionTaxi  = "taxi"
	DirectionCargo = "cargo"
)

type DriverApplication struct {
	ID            types.ID
	SubmissionKey string
	ApplicantID   types.UserID
	Direction     string
	FullName      string
	Phone         string
	PassportPhoto string
	STSPhoto      string
	LicensePhoto  string
	CarModel      string
	CarNumber     string
	CarYear       int
	Capacity      int
	CarPhoto      string
	Status        Status
	ModeratorID   *types.UserID
	Reason        string
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

type TopUpRequest struct {
	ID            types.ID
	SubmissionKey string
	DriverID      types.UserID
	Amount        int64
	ProofRef      string
	Status        Status
	ModeratorID   *types.UserID
	Reason        string
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

// Request is the kind-independent view of a moderated record.
type Request struct {
	Kind      Kind
	ID        types.ID
	Submitter types.UserID
	Status    Status
	Reason    string
	CreatedAt time.Time
}

func (r Request) Pending() bool { return r.Status == StatusPending }

func (a *DriverApplication) Request() Request {
	return Request{Kind: KindDriverApplication, ID: a.ID, Submitter: a.ApplicantID, Status: a.Status, Reason: a.Reason, CreatedAt: a.CreatedAt}
}

func (t *TopUpRequest) Request() Request {
	return Request{Kind: KindTopUp, ID: t.ID, Submitter: t.DriverID, Status: t.Status, Reason: t.Reason, CreatedAt: t.CreatedAt}
}

var (
	ErrNotFound        = errors.New("request not found")
	ErrAlreadyResolved = errors.New("request already resolved")
	ErrPermission      = errors.New("moderator role required")
	ErrBadRequest      = errors.New("bad request")
	ErrUnknownKind     = errors.New("unknown request kind")
	ErrNotDriver       = errors.New("only drivers can buy balls")
	ErrAlreadyDriver   = errors.New("user is already a driver")
)

// Profile is copied onto the user when the application is approved.
func (a *DriverApplication) Profile() user.Profile {
	return user.Profile{
		FullName:  a.FullName,
		Phone:     a.Phone,
		Direction: a.Direction,
		CarModel:  a.CarModel,
		CarNumber: a.CarNumber,
		CarPhoto:  a.CarPhoto,
	}
}
