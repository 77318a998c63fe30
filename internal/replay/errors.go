package replay

import "errors"

// ErrInvalidOrdering is returned when journaled fills are not in strictly
// ascending chain-position order.
var ErrInvalidOrdering = errors.New("fills are not in deterministic order")
