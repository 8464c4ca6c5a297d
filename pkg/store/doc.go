// Package store defines the document-store port for the Memory Vista
// access-control service, plus the domain documents it persists.
//
// # Overview
//
// The service originally talked to two interchangeable hosted backends with
// duplicated logic per backend. Here the business logic is written once
// against the Store interface, and each backend is a swappable adapter:
//
//   - pkg/store/postgres: PostgreSQL adapter (lib/pq)
//   - pkg/store/redisstore: Redis document adapter (go-redis)
//
// # Transactions
//
// The editor-request workflow mutates several documents at once (the request
// itself, the requester's stats, the profile collaborator list). Store.Update
// runs a closure against the Tx capability inside the backend's native
// transaction primitive so the pending-count and cooldown invariants hold
// under concurrent submissions.
//
// # Error contract
//
// Reads return ErrNotFound for absent documents. Adapters wrap backend
// failures in UnavailableError; callers treat those as retryable and never
// as an authorization signal.
package store
