// Package remote implements the remote contact service.
//
// A backend is a pair:
//
//   - Repository stores records and profiles (memory, Redis, Postgres).
//   - Feed pushes per-owner changes (memory, Redis Pub/Sub, Postgres
//     LISTEN/NOTIFY, NATS).
//
// Service combines a Repository and a Feed into the
// ports.RemoteContactService the engine talks to. It owns the behavior
// that is the same for every backend:
//
//   - creating a record from the counterpart's directory profile
//   - patching and deleting records
//   - publishing the resulting Change to the record's owner
//   - mapping failures to typed contact errors
//   - tracing each call with OpenTelemetry
//
// Backends live in subpackages (redisremote, pgremote, natsfeed); the
// in-memory pair is in this package because scenarios and tests share it.
package remote
