// Package mfa implements the multi-factor-authentication engine that gates
// destructive router commands: encrypted-at-rest TOTP enrollment, time-window
// code verification with failure rate-limiting, and a TTL session cache backed
// by SQLite.
//
// The three moving parts are Store (SQLite persistence for enrollments,
// sessions, failure counters, and the audit log), SessionManager (an in-memory
// userID→sessionID cache fronting the store, with lazy expiry on read and a
// periodic sweep), and Verifier (the verification state machine: enrollment
// check, rate limit, TOTP or backup-code match, session issuance).
package mfa
