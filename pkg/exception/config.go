package exception

import "errors"

var (
	ErrUnknownStrategy   = errors.New("config: unknown strategy kind")
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
	ErrInvalidConfig     = errors.New("config: invalid")
)
