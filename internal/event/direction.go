package event

import "fmt"

// Direction is a trade direction. It is the value kept confidential by the
// engine: plaintext directions only appear in events after the owner has
// revealed them.
type Direction int32

const (
	DirectionLong Direction = iota
	DirectionShort
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	default:
		return "unknown"
	}
}

// Sign returns +1 for long, -1 for short.
func (d Direction) Sign() int64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// ParseDirection converts a wire string into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "long":
		return DirectionLong, nil
	case "short":
		return DirectionShort, nil
	default:
		return DirectionLong, fmt.Errorf("unknown direction: %q", s)
	}
}
