package signer

import "fmt"

// AuthenticationError indicates the request credential is missing, malformed,
// or was produced by a key other than the claimed account's.
type AuthenticationError struct {
	msg string
}

func (e *AuthenticationError) Error() string { return e.msg }

func newAuthenticationError(format string, args ...interface{}) *AuthenticationError {
	return &AuthenticationError{msg: fmt.Sprintf(format, args...)}
}

// MalformedInputError indicates a structurally invalid request field. No state
// is mutated and no quota is charged for these requests.
type MalformedInputError struct {
	msg string
}

func (e *MalformedInputError) Error() string { return e.msg }

func newMalformedInputError(format string, args ...interface{}) *MalformedInputError {
	return &MalformedInputError{msg: fmt.Sprintf(format, args...)}
}

// UnknownKeyVersionError indicates the requested key version has no shard
// loaded on this node.
type UnknownKeyVersionError struct {
	Version string
}

func (e *UnknownKeyVersionError) Error() string {
	return fmt.Sprintf("unknown key version: %s", e.Version)
}

// QuotaExceededError is returned when an identity submits a new query with no
// remaining quota. It carries the quota state observed at decision time so the
// caller can report it.
type QuotaExceededError struct {
	TotalQuota          uint64
	PerformedQueryCount uint64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: performed %d of %d allowed queries",
		e.PerformedQueryCount, e.TotalQuota)
}

// DependencyError wraps a failure of an external collaborator (delegation
// registry or entitlement source). It is never masked as a quota or
// delegation decision.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }
