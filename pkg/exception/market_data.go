package exception

import "errors"

var (
	ErrUnknownInstrument = errors.New("market data: unknown instrument")
	ErrUnknownGenerator  = errors.New("market data: unknown generator")
)
