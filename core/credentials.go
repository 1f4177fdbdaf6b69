package core

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
)

// CredentialResolver resolves the API key for a (user, provider) pair,
// preferring a user-scoped override from the settings collaborator and
// falling back to process configuration. Resolutions are cached for the
// lifetime of the resolver instance so one job's repeated dispatches do not
// repeat the lookup.
type CredentialResolver struct {
	Settings SettingsStore
	Env      EnvLookup

	mu    sync.RWMutex
	cache map[string]Credential
}

func NewCredentialResolver(settings SettingsStore) *CredentialResolver {
	return &CredentialResolver{
		Settings: settings,
		Env:      os.LookupEnv,
		cache:    map[string]Credential{},
	}
}

// Resolve returns the credential for the adapter. An empty userID skips the
// user-scoped lookup. ErrSettingNotFound and ErrInvalidSettingQuery from the
// settings store are expected outcomes and fall through silently; any other
// settings error propagates. A missing default key is a configuration error
// naming the env var, and is fatal for the calling dispatch.
func (r *CredentialResolver) Resolve(ctx context.Context, userID string, spec AdapterSpec) (Credential, error) {
	if r == nil {
		return Credential{}, NewConfigurationError("core: credential resolver is not configured")
	}
	userID = strings.TrimSpace(userID)
	cacheKey := userID + "\x00" + strings.TrimSpace(spec.ID)

	r.mu.RLock()
	cached, ok := r.cache[cacheKey]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	credential, err := r.resolve(ctx, userID, spec)
	if err != nil {
		return Credential{}, err
	}

	r.mu.Lock()
	if r.cache == nil {
		r.cache = map[string]Credential{}
	}
	r.cache[cacheKey] = credential
	r.mu.Unlock()
	return credential, nil
}

func (r *CredentialResolver) resolve(ctx context.Context, userID string, spec AdapterSpec) (Credential, error) {
	if userID != "" && r.Settings != nil {
		key, err := r.Settings.ProviderKey(ctx, userID, spec.ID)
		switch {
		case err == nil && strings.TrimSpace(key) != "":
			return Credential{Value: strings.TrimSpace(key), Source: CredentialSourceUser}, nil
		case err == nil:
			// Stored but blank; treat as absent.
		case errors.Is(err, ErrSettingNotFound), errors.Is(err, ErrInvalidSettingQuery):
			// Expected outcomes, fall through to the process default.
		default:
			return Credential{}, err
		}
	}

	lookup := r.Env
	if lookup == nil {
		lookup = os.LookupEnv
	}
	envVar := strings.TrimSpace(spec.CredentialEnvVar)
	if value, ok := lookup(envVar); ok && strings.TrimSpace(value) != "" {
		return Credential{Value: strings.TrimSpace(value), Source: CredentialSourceDefault}, nil
	}
	return Credential{}, NewConfigurationError(envVar + " is not set")
}
