// Package testutil provides shared mock errors for tests across gantry packages.
//
// Using shared sentinel errors keeps failure-path tests consistent and lets
// assertions use errors.Is instead of string matching.
package testutil

import "errors"

// Mock errors for simulating failures in tests.
var (
	// ErrMockCommand simulates a shell command failure.
	ErrMockCommand = errors.New("mock command error")

	// ErrMockStore simulates a run store failure.
	ErrMockStore = errors.New("mock store error")

	// ErrMockVerify simulates an artifact verification failure.
	ErrMockVerify = errors.New("mock verify error")

	// ErrMockHistory simulates a history database failure.
	ErrMockHistory = errors.New("mock history error")

	// ErrMockGit simulates a git metadata failure.
	ErrMockGit = errors.New("mock git error")
)
