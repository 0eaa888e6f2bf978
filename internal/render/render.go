// README: Localized rendering of orders and requests shared by the bot, dispatch and moderation.
package render

import (
	"fmt"
	"strings"

	"caravan/internal/i18n"
	"caravan/internal/modules/geo"
	"caravan/internal/modules/order"
)

type Renderer struct {
	texts *i18n.Bundle
	geo   *geo.Catalog
}

func New(texts *i18n.Bundle, catalog *geo.Catalog) *Renderer {
	return &Renderer{texts: texts, geo: catalog}
}

func (r *Renderer) Texts() *i18n.Bundle { return r.texts }

func (r *Renderer) Geo() *geo.Catalog { return r.geo }

// T resolves one text key.
func (r *Renderer) T(lang, key string, params i18n.Params) string {
	return r.texts.Resolve(lang, key, params)
}

func (r *Renderer) Place(lang string, l order.Location) string {
	return r.geo.Place(l.Country, l.Region, l.City, lang)
}

func (r *Renderer) Category(lang string, c order.Category) string {
	return r.T(lang, "category."+string(c), nil)
}

func (r *Renderer) Status(lang string, s order.Status) string {
	return r.T(lang, "status."+string(s), nil)
}

// Detail controls which parts of an order are shown.
type Detail int

const (
	// Public hides the requester's contact. Used for broadcast cards.
	Public Detail = iota
	// Full includes name and phone.
	Full
)

// Order renders the order body. Empty optional fields print as a dash.
func (r *Renderer) Order(lang string, o *order.Order, d Detail) string {
	var b strings.Builder
	b.WriteString(r.Category(lang, o.Category))
	b.WriteByte('\n')
	field := func(key string, value any) {
		s := fmt.Sprint(value)
		if s == "" {
			s = r.T(lang, "order.empty", nil)
		}
		fmt.Fprintf(&b, "\n%s: %s", r.T(lang, "order.field."+key, nil), s)
	}
	if d == Full {
		field("name", o.FullName)
		field("phone", o.Phone)
	}
	field("from", r.Place(lang, o.From))
	field("to", r.Place(lang, o.To))
	field("date", o.TravelDate)
	switch o.Category {
	case order.CategoryTaxi:
		field("passengers", o.Payload.Passengers)
		field("comment", o.Payload.Comment)
	case order.CategoryParcel:
		field("content", o.Payload.ParcelContent)
		field("comment", o.Payload.Comment)
	case order.CategoryCargo:
		field("weight", o.Payload.CargoWeight)
		field("price", o.Payload.CargoPrice)
		field("terms", o.Payload.CargoTerms)
	default:
		field("comment", o.Payload.Comment)
	}
	if o.Cost > 0 {
		field("cost", o.Cost)
	}
	return b.String()
}

// OrderLine is the one-line form used in order lists.
func (r *Renderer) OrderLine(lang string, o *order.Order) string {
	return fmt.Sprintf("%s: %s → %s, %s (%s)",
		r.Category(lang, o.Category), r.Place(lang, o.From), r.Place(lang, o.To), o.TravelDate, r.Status(lang, o.Status))
}
