package md

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotEnoughData = errors.New("not enough prices for window")

// PriceWindow keeps the most recent tick prices for one symbol.
type PriceWindow struct {
	values []decimal.Decimal
	size   int
	index  int
	filled bool
}

func NewPriceWindow(size int) *PriceWindow {
	if size <= 0 {
		size = 1
	}
	return &PriceWindow{
		values: make([]decimal.Decimal, size),
		size:   size,
	}
}

func (w *PriceWindow) Add(price decimal.Decimal) {
	w.values[w.index] = price
	w.index = (w.index + 1) % w.size
	if w.index == 0 {
		w.filled = true
	}
}

func (w *PriceWindow) Len() int {
	if w.filled {
		return w.size
	}
	return w.index
}

// Values returns prices oldest first.
func (w *PriceWindow) Values() []decimal.Decimal {
	length := w.Len()
	result := make([]decimal.Decimal, 0, length)
	if length == 0 {
		return result
	}
	if w.filled {
		result = append(result, w.values[w.index:]...)
	}
	result = append(result, w.values[:w.index]...)
	return result
}

func (w *PriceWindow) Last() (decimal.Decimal, bool) {
	if w.Len() == 0 {
		return decimal.Zero, false
	}
	return w.values[(w.index-1+w.size)%w.size], true
}

func (w *PriceWindow) SMA(window int) (decimal.Decimal, error) {
	if window <= 0 {
		return decimal.Zero, errors.New("window must be positive")
	}
	values := w.Values()
	if len(values) < window {
		return decimal.Zero, ErrNotEnoughData
	}
	return avg(values[len(values)-window:]), nil
}

func avg(values []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values))))
}
