package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// ServiceTokens authenticates machine callers such as CRM webhooks that post
// triggers on behalf of any user.
type ServiceTokens struct {
	digests [][sha256.Size]byte
}

// NewServiceTokens hashes the configured tokens. Blank entries are ignored.
func NewServiceTokens(tokens []string) *ServiceTokens {
	st := &ServiceTokens{}
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		st.digests = append(st.digests, sha256.Sum256([]byte(token)))
	}
	return st
}

// Enabled reports whether any token is configured.
func (s *ServiceTokens) Enabled() bool {
	return s != nil && len(s.digests) > 0
}

// Verify compares token against every configured token in constant time.
func (s *ServiceTokens) Verify(token string) bool {
	if !s.Enabled() || token == "" {
		return false
	}
	digest := sha256.Sum256([]byte(token))
	match := 0
	for _, candidate := range s.digests {
		match |= subtle.ConstantTimeCompare(digest[:], candidate[:])
	}
	return match == 1
}
