// Package provider defines the backend interface used to generate a single
// style response. Adapters (gemini, openai) translate a [Request] into their
// own wire protocol and perform exactly one outbound call per Generate;
// retrying is the caller's job.
package provider
