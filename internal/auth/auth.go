package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"slices"
	"strings"
)

type Scope string

const (
	ScopeGenerate Scope = "generate"
	ScopeExecute  Scope = "execute"
)

func (s Scope) Valid() bool {
	return s == ScopeGenerate || s == ScopeExecute
}

// Principal is the authenticated caller. Answering a question needs both
// scopes since it generates and runs a script.
type Principal struct {
	Name   string
	Scopes []Scope
}

func (p Principal) HasScope(scope Scope) bool {
	return slices.Contains(p.Scopes, scope)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Principal, bool)
}

type staticKey struct {
	digest    [sha256.Size]byte
	principal Principal
}

type StaticAPIKeyValidator struct {
	keys []staticKey
}

// NewStaticAPIKeyValidator parses "key:principal:scope|scope" entries
// separated by commas.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:principal:scope|scope", entry)
		}
		key := strings.TrimSpace(parts[0])
		name := strings.TrimSpace(parts[1])
		if key == "" || name == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/principal", entry)
		}
		var scopes []Scope
		for _, raw := range strings.Split(parts[2], "|") {
			scope := Scope(strings.TrimSpace(raw))
			if scope == "" {
				continue
			}
			if !scope.Valid() {
				return nil, fmt.Errorf("invalid static key entry %q: unknown scope %q", entry, scope)
			}
			if !slices.Contains(scopes, scope) {
				scopes = append(scopes, scope)
			}
		}
		if len(scopes) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one scope is required", entry)
		}
		slices.Sort(scopes)
		validator.keys = append(validator.keys, staticKey{
			digest:    sha256.Sum256([]byte(key)),
			principal: Principal{Name: name, Scopes: scopes},
		})
	}
	return validator, nil
}

// Validate compares digests in constant time and checks every entry.
func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Principal, bool) {
	digest := sha256.Sum256([]byte(apiKey))
	var (
		found   Principal
		matched bool
	)
	for _, key := range v.keys {
		if subtle.ConstantTimeCompare(digest[:], key.digest[:]) == 1 && !matched {
			found = key.principal
			matched = true
		}
	}
	return found, matched
}
