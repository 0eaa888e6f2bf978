// README: Conversation flows: one ordered step list per order type, shared by every flow.
package conversation

import (
	"caravan/internal/modules/order"
)

type FlowID string

const (
	FlowTaxi   FlowID = "taxi"
	FlowParcel FlowID = "parcel"
	FlowCargo  FlowID = "cargo"
	FlowFlight FlowID = "flight"
	FlowTrain  FlowID = "train"
	FlowDriver FlowID = "driver"
	FlowTopUp  FlowID = "topup"
	// Moderator sub-conversations. Their draft is preset with the target request.
	FlowRejectReason FlowID = "rejectreason"
	FlowTicketReply  FlowID = "ticketreply"
)

// StepKind selects the input contract of a step.
type StepKind int

const (
	StepText StepKind = iota + 1
	StepPhone
	StepInt
	StepPhoto
	StepChoice
	StepLocation
	StepDate
	StepConfirm
)

// Step is one prompt of a flow. Field names never contain an underscore, since skip
// actions carry them as their argument.
type Step struct {
	Field string
	Kind  StepKind
	// Optional text steps offer a skip button that stores "".
	Optional bool
	// Min and Max bound StepInt values.
	Min, Max int
	// Quick are pick buttons offered next to typed input for StepInt.
	Quick []string
	// Choices are the only accepted values of StepChoice.
	Choices []string
	MaxLen  int
}

type Flow struct {
	ID    FlowID
	Steps []Step
	// Category is set for flows that create an order.
	Category order.Category
}

// Draft keys of the preset moderator sub-conversations.
const (
	KeyTargetKind  = "target.kind"
	KeyTargetID    = "target.id"
	KeyCardChat    = "card.chat"
	KeyCardMessage = "card.message"
)

var (
	stepName     = Step{Field: "name", Kind: StepText, MaxLen: 100}
	stepPhone    = Step{Field: "phone", Kind: StepPhone}
	stepFrom     = Step{Field: "from", Kind: StepLocation}
	stepTo       = Step{Field: "to", Kind: StepLocation}
	stepDate     = Step{Field: "date", Kind: StepDate}
	stepComment  = Step{Field: "comment", Kind: StepText, Optional: true, MaxLen: 500}
	stepConfirm  = Step{Field: "confirm", Kind: StepConfirm}
	stepPassport = Step{Field: "passport", Kind: StepPhoto}
)

// route is the skeleton every order flow shares; extra steps go between the date and the comment.
func route(extra ...Step) []Step {
	steps := []Step{stepName, stepPhone, stepFrom, stepTo, stepDate}
	steps = append(steps, extra...)
	return append(steps, stepComment, stepConfirm)
}

var flows = map[FlowID]Flow{
	FlowTaxi: {
		ID:       FlowTaxi,
		Category: order.CategoryTaxi,
		Steps:    route(Step{Field: "passengers", Kind: StepInt, Min: 1, Max: 8, Quick: []string{"1", "2", "3", "4"}}),
	},
	FlowParcel: {
		ID:       FlowParcel,
		Category: order.CategoryParcel,
		Steps:    route(Step{Field: "content", Kind: StepText, MaxLen: 300}),
	},
	FlowCargo: {
		ID:       FlowCargo,
		Category: order.CategoryCargo,
		Steps: route(
			Step{Field: "weight", Kind: StepText, MaxLen: 100},
			Step{Field: "price", Kind: StepText, MaxLen: 100},
			Step{Field: "terms", Kind: StepText, Optional: true, MaxLen: 500},
		),
	},
	FlowFlight: {
		ID:       FlowFlight,
		Category: order.CategoryFlightTicket,
		Steps:    route(stepPassport),
	},
	FlowTrain: {
		ID:       FlowTrain,
		Category: order.CategoryTrainTicket,
		Steps:    route(stepPassport),
	},
	FlowDriver: {
		ID: FlowDriver,
		Steps: []Step{
			{Field: "direction", Kind: StepChoice, Choices: []string{"taxi", "cargo"}},
			stepName,
			stepPhone,
			stepPassport,
			{Field: "license", Kind: StepPhoto},
			{Field: "sts", Kind: StepPhoto},
			{Field: "carmodel", Kind: StepText, MaxLen: 100},
			{Field: "carnumber", Kind: StepText, MaxLen: 20},
			{Field: "caryear", Kind: StepInt, Min: 1950, Max: 2100},
			{Field: "capacity", Kind: StepInt, Min: 1, Max: 60, Quick: []string{"4", "7", "12"}},
			{Field: "carphoto", Kind: StepPhoto},
			stepConfirm,
		},
	},
	FlowTopUp: {
		ID: FlowTopUp,
		Steps: []Step{
			{Field: "amount", Kind: StepInt, Min: 1, Max: 100000, Quick: []string{"10", "50", "100"}},
			{Field: "screenshot", Kind: StepPhoto},
		},
	},
	FlowRejectReason: {
		ID:    FlowRejectReason,
		Steps: []Step{{Field: "reason", Kind: StepText, MaxLen: 500}},
	},
	FlowTicketReply: {
		ID:    FlowTicketReply,
		Steps: []Step{{Field: "reply", Kind: StepText, MaxLen: 1000}},
	},
}

// Lookup returns the flow definition.
func Lookup(id FlowID) (Flow, bool) {
	f, ok := flows[id]
	return f, ok
}

// FlowForCategory maps an order category to the flow that collects it.
func FlowForCategory(c order.Category) (FlowID, bool) {
	for id, f := range flows {
		if f.Category == c && c != "" {
			return id, true
		}
	}
	return "", false
}

// Confirms reports whether the flow ends with an explicit confirm step.
func (f Flow) Confirms() bool {
	return len(f.Steps) > 0 && f.Steps[len(f.Steps)-1].Kind == StepConfirm
}
