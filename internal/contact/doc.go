// Package contact defines the relationship data model and its pure
// state transitions.
//
// A relationship between two users is stored as two directed Records,
// one held by each party. A Record carries:
//   - the roles the counterpart plays for the owner (responder, dependent)
//   - the counterpart's check-in schedule
//   - the ping and alert signals exchanged between the two
//
// Everything in this package is side-effect free. Status is computed by
// Evaluate from an explicit "now"; signal changes are expressed as Patch
// values (see SendPing, ClearPing, PlanCheckIn, ActivateAlert) that the
// engine sends to the remote and applies locally once confirmed.
//
// Errors use the typed Error with a Code, so callers can branch with
// IsCode or CodeOf regardless of how deeply the error was wrapped.
package contact
