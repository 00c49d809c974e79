// Package internal holds the RSVP server internals.
//
// The tree is organized by responsibility:
// - api: HTTP router, handlers, middleware, and problem+json errors
// - domain: users, events, RSVPs, and the ownership policy between them
// - storage: repository contracts and the Postgres implementation
// - auth, audit, config, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
