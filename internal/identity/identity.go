// Package identity is the boundary to the external auth provider. The core
// only needs a token resolved to a subject and an admin flag; registration
// and token issuance live elsewhere.
package identity

import (
	"context"
	"errors"
	"strings"
)

var ErrUnknownToken = errors.New("unknown token")

type Identity struct {
	UserID  string
	IsAdmin bool
}

type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// StaticResolver is a fixed token table for development and tests.
type StaticResolver struct {
	tokens map[string]Identity
}

func NewStaticResolver(tokens map[string]Identity) *StaticResolver {
	m := make(map[string]Identity, len(tokens))
	for t, id := range tokens {
		m[t] = id
	}
	return &StaticResolver{tokens: m}
}

func (r *StaticResolver) Resolve(_ context.Context, token string) (Identity, error) {
	id, ok := r.tokens[token]
	if !ok {
		return Identity{}, ErrUnknownToken
	}
	return id, nil
}

// ParseStaticTokens parses the AUTH_TOKENS env format:
// "token=user1,admintoken=user2:admin". The :admin suffix grants the admin
// capability.
func ParseStaticTokens(s string) *StaticResolver {
	tokens := make(map[string]Identity)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tok, subject, ok := strings.Cut(pair, "=")
		if !ok || tok == "" || subject == "" {
			continue
		}
		userID, role, _ := strings.Cut(subject, ":")
		tokens[tok] = Identity{UserID: userID, IsAdmin: role == "admin"}
	}
	return NewStaticResolver(tokens)
}
