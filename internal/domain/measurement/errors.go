package measurement

import "errors"

// Sentinel kinds for build errors.
var (
	ErrInvalidSkill     = errors.New("invalid skill")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidInventory = errors.New("invalid inventory id")
	ErrInvalidBoss      = errors.New("invalid boss name")
	ErrInvalidKillCount = errors.New("invalid kill count")
	ErrItemNotFound     = errors.New("item definition not found")
	ErrLookup           = errors.New("item lookup failed")
	ErrInvalidRecord    = errors.New("record cannot be encoded")
)

// ErrorKind returns a short label for err suitable for metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, ErrLookup):
		return "lookup"
	case errors.Is(err, ErrInvalidSkill):
		return "invalid_skill"
	case errors.Is(err, ErrInvalidInventory):
		return "invalid_inventory"
	case errors.Is(err, ErrInvalidBoss), errors.Is(err, ErrInvalidKillCount):
		return "invalid_killcount"
	case errors.Is(err, ErrInvalidRecord):
		return "invalid_record"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "unknown"
	}
}
