package numbers

import "errors"

// ErrInvalidCategory is returned for codes outside the known set.
var ErrInvalidCategory = errors.New("invalid number type")

// Category identifies one of the independently tracked kinds of numbers.
// Its value is the single-character code used on the wire.
type Category string

const (
	Prime     Category = "p"
	Fibonacci Category = "f"
	Even      Category = "e"
	Random    Category = "r"
)

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{Prime, Fibonacci, Even, Random}
}

// ParseCategory validates a wire code.
func ParseCategory(code string) (Category, error) {
	switch c := Category(code); c {
	case Prime, Fibonacci, Even, Random:
		return c, nil
	default:
		return "", ErrInvalidCategory
	}
}

// Code returns the wire code.
func (c Category) Code() string {
	return string(c)
}

// Name returns a human readable name, used for logs and metric labels.
func (c Category) Name() string {
	switch c {
	case Prime:
		return "prime"
	case Fibonacci:
		return "fibonacci"
	case Even:
		return "even"
	case Random:
		return "random"
	default:
		return "unknown"
	}
}
