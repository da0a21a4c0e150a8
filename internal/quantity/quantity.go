// Package quantity maps the quantity-transform key from a pair config
// to a statically implemented function. The set is closed on purpose:
// transforms used to arrive as code in the config, which is not
// something this bot will ever evaluate.
package quantity

import "math"

// Transform adjusts a raw order quantity to something the exchange
// accepts (whole units, step-size decimals, ...).
type Transform func(quantity float64) float64

// Identity returns the quantity unchanged. It is the fallback for an
// empty or unknown transform key.
func Identity(quantity float64) float64 { return quantity }

func floorTo(decimals int) Transform {
	factor := math.Pow(10, float64(decimals))
	return func(quantity float64) float64 {
		return math.Floor(quantity*factor) / factor
	}
}

var registry = map[string]Transform{
	"identity": Identity,
	"floor":    floorTo(0),
	"floor2":   floorTo(2),
	"floor3":   floorTo(3),
	"floor5":   floorTo(5),
}

// ForKey resolves a transform by its config key. Unknown keys resolve
// to Identity so a config typo degrades to a safe no-op instead of an
// error.
func ForKey(key string) Transform {
	if t, ok := registry[key]; ok {
		return t
	}
	return Identity
}
