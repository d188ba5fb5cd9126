// Package apikey authenticates callers holding a static API key, sent
// either as a bearer token or in the X-API-Key header. Keys are kept
// only as SHA-256 hashes and compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/trianswer/pkg/auth"
)

// HeaderName is the alternative header carrying a raw key.
const HeaderName = "X-API-Key"

// KeyEntry maps a key hash to an identity.
type KeyEntry struct {
	KeyHash  [32]byte
	Identity auth.Identity
}

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

// Entry builds a RawKeyEntry for a subject scoped to a tenant.
func Entry(key, subject, tenantID, tier string) RawKeyEntry {
	id := auth.Identity{Subject: subject, ServiceTier: tier}
	if tenantID != "" {
		id.Metadata = map[string]string{"tenant_id": tenantID}
	}
	return RawKeyEntry{Key: key, Identity: id}
}

// Authenticator validates keys against a static store.
type Authenticator struct {
	keys []KeyEntry
}

// New hashes the given keys; plaintext keys are not retained.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{keys: make([]KeyEntry, 0, len(entries))}
	for _, e := range entries {
		a.keys = append(a.keys, KeyEntry{
			KeyHash:  sha256.Sum256([]byte(e.Key)),
			Identity: e.Identity,
		})
	}
	return a
}

// Authenticate votes Abstain when no key is presented, No when a key is
// presented but unknown, and Yes otherwise.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, present := credential(r)
	if !present {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	tokenHash := sha256.Sum256([]byte(token))
	matched := -1
	for i, entry := range a.keys {
		// Scan every entry so timing does not reveal the match position.
		if subtle.ConstantTimeCompare(tokenHash[:], entry.KeyHash[:]) == 1 && matched < 0 {
			matched = i
		}
	}
	if matched < 0 {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	id := a.keys[matched].Identity
	if id.Metadata != nil {
		md := make(map[string]string, len(id.Metadata))
		for k, v := range id.Metadata {
			md[k] = v
		}
		id.Metadata = md
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}

func credential(r *http.Request) (string, bool) {
	if v, ok := r.Header[http.CanonicalHeaderKey(HeaderName)]; ok && len(v) > 0 {
		return strings.TrimSpace(v[0]), true
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), true
}
