package conversation

import (
	"strconv"

	"caravan/internal/modules/moderation"
	"caravan/internal/modules/order"
	"caravan/internal/types"
)

func (d Draft) Location(field string) order.Location {
	return order.Location{
		Country: d[field+".country"],
		Region:  d[field+".region"],
		City:    d[field+".city"],
	}
}

// Int returns the numeric value of field, or 0.
func (d Draft) Int(field string) int {
	n, _ := strconv.Atoi(d[field])
	return n
}

// OrderCommand converts a finished order draft. The cost is left for the caller to quote.
func OrderCommand(flow FlowID, requester types.UserID, submissionKey string, d Draft) (order.CreateCommand, error) {
	f, ok := Lookup(flow)
	if !ok || f.Category == "" {
		return order.CreateCommand{}, ErrUnknownFlow
	}
	return order.CreateCommand{
		SubmissionKey: submissionKey,
		Category:      f.Category,
		RequesterID:   requester,
		FullName:      d["name"],
		Phone:         d["phone"],
		From:          d.Location("from"),
		To:            d.Location("to"),
		TravelDate:    d["date"],
		Payload: order.Payload{
			Passengers:    d.Int("passengers"),
			Comment:       d["comment"],
			ParcelContent: d["content"],
			CargoWeight:   d["weight"],
			CargoPrice:    d["price"],
			CargoTerms:    d["terms"],
			PassportPhoto: d["passport"],
		},
	}, nil
}

func ApplicationCommand(applicant types.UserID, submissionKey string, d Draft) moderation.ApplicationCommand {
	return moderation.ApplicationCommand{
		SubmissionKey: submissionKey,
		ApplicantID:   applicant,
		Direction:     d["direction"],
		FullName:      d["name"],
		Phone:         d["phone"],
		PassportPhoto: d["passport"],
		STSPhoto:      d["sts"],
		LicensePhoto:  d["license"],
		CarModel:      d["carmodel"],
		CarNumber:     d["carnumber"],
		CarYear:       d.Int("caryear"),
		Capacity:      d.Int("capacity"),
		CarPhoto:      d["carphoto"],
	}
}

func TopUpCommand(driver types.UserID, submissionKey string, d Draft) moderation.TopUpCommand {
	return moderation.TopUpCommand{
		SubmissionKey: submissionKey,
		DriverID:      driver,
		Amount:        int64(d.Int("amount")),
		ProofRef:      d["screenshot"],
	}
}
