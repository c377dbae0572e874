package exception

import "errors"

var (
	ErrOrderUnknown           = errors.New("order: not found")
	ErrOrderDuplicate         = errors.New("order: already exists")
	ErrOrderInvalidQty        = errors.New("order: invalid quantity")
	ErrOrderInvalidSide       = errors.New("order: invalid side")
	ErrOrderFillMismatch      = errors.New("order: fill does not match order")
	ErrOrderInvalidTransition = errors.New("order: invalid state transition")
)
