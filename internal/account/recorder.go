// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

// Outcome labels passed to a Recorder.
const (
	ResultSuccess  = "success"
	ResultConflict = "conflict"
	ResultInvalid  = "invalid"
	ResultDenied   = "denied"
	ResultAllowed  = "allowed"
	ResultError    = "error"
)

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	RegistrationResult(result string)
	LoginResult(result string)
	AuthDecision(operation, result string)
}

// NopRecorder discards all outcomes.
type NopRecorder struct{}

// RegistrationResult implements Recorder.
func (NopRecorder) RegistrationResult(string) {}

// LoginResult implements Recorder.
func (NopRecorder) LoginResult(string) {}

// AuthDecision implements Recorder.
func (NopRecorder) AuthDecision(string, string) {}
