package memory

import "errors"

// Sentinel errors returned by the engine and the resumer. They describe
// caller input, not faults, and compare with errors.Is.
var (
	ErrEmptyQuery      = errors.New("memory: query cannot be empty")
	ErrProjectNotFound = errors.New("memory: project not found")
	ErrInvalidMode     = errors.New("memory: invalid resume mode")
	ErrNoConversations = errors.New("memory: no conversations found")
)
