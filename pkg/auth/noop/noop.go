// Package noop provides an authenticator that accepts every request as
// the anonymous caller in the default tenant.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/trianswer/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     "anonymous",
			ServiceTier: "default",
		},
	}
}
