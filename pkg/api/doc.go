// Package api defines the data model shared by every layer of trianswer.
//
// A conversation is an ordered sequence of [Turn] records. Each user query
// produces a user turn and a paired assistant turn whose Responses map holds
// one [ResponseValue] per style key. The key set is fixed by the turn's
// [Mode] at creation; values only ever move from pending to text or error.
//
// Core types:
//   - [Turn]: one user submission or its assistant record
//   - [Mode], [StyleKey]: the fan-out configuration of a turn
//   - [ResponseValue]: pending, text, or a structured error for one style
//   - [Event]: a store mutation observed by subscribers
//   - [APIError]: structured error with type, code, param, and message
//
// The package performs no I/O.
package api
