// README: Ball price rate per order category.
package pricing

import "errors"

// Rate prices an order as Flat + PerUnit*quantity balls.
type Rate struct {
	Category string
	PerUnit  int64
	Flat     int64
}

func (r Rate) Cost(quantity int) int64 {
	if quantity < 1 {
		quantity = 1
	}
	return r.Flat + r.PerUnit*int64(quantity)
}

var (
	ErrRateNotFound = errors.New("rate not found")
	ErrNotPriced    = errors.New("category is not priced in balls")
	ErrInvalidRate  = errors.New("rate values must not be negative")
)
