package domain

import "errors"

// Sentinel errors shared across repositories and services.
var (
	ErrNotFound     = errors.New("not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrDuplicate    = errors.New("duplicate record")
	ErrInvalidState = errors.New("oauth state mismatch")
	ErrUpstream     = errors.New("upstream identity provider failure")
)
