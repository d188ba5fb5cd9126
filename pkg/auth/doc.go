// Package auth guards the conversation API.
//
// Authenticators vote Yes, No, or Abstain on each request and an
// AuthChain takes the first non-abstaining vote. The HTTP middleware
// stores the resulting identity in the request context and scopes the
// conversation store to the identity's tenant, so two callers using the
// same conversation id never see each other's turns.
package auth
