package gateway

import (
	"crypto/subtle"

	"agency-ai/internal/domain"
)

// ClientInfo holds metadata about an authenticated gateway client.
type ClientInfo struct {
	Name  string
	Roles []string
	// OwnerID is the visibility and quota key injected into handler
	// contexts. It defaults to the credential name.
	OwnerID string
}

// Credential is one static token entry the gateway accepts.
type Credential struct {
	Token string
	Name  string
	Roles []string
}

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

type authEntry struct {
	token []byte
	info  ClientInfo
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison to prevent timing attacks.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from a set of credentials.
// Credentials without a name authenticate as "default".
func NewStaticTokenAuth(creds []Credential) *StaticTokenAuth {
	a := &StaticTokenAuth{
		entries: make([]authEntry, len(creds)),
	}
	for i, c := range creds {
		name := c.Name
		if name == "" {
			name = "default"
		}
		a.entries[i] = authEntry{
			token: []byte(c.Token),
			info:  ClientInfo{Name: name, Roles: c.Roles, OwnerID: name},
		}
	}
	return a
}

// Authenticate returns client info if the token is valid. The result is
// a per-call copy, so callers may annotate it freely.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			info := e.info
			info.Roles = append([]string(nil), e.info.Roles...)
			return &info, nil
		}
	}
	return nil, domain.ErrGatewayAuth
}
