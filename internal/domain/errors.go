package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateRule       = errors.New("a rule with the same name already exists")
	ErrTooManySameNames    = errors.New("too many rules with the same name")
	ErrLabelUnknown        = errors.New("app label unknown")
	ErrBlankTitle          = errors.New("notification title is blank")
	ErrInvalidRule         = errors.New("rule needs a package name and a channel id")
	ErrInvalidNotification = errors.New("notification needs a package name and a channel id")
)
