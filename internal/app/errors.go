package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrRegenerationInProgress = errors.New("regeneration already running")
	ErrNoMembers              = errors.New("group has no members")
	ErrInvalidRange           = errors.New("invalid range")
)
