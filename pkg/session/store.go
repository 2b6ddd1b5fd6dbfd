// Package session holds the signed-in user's credential and profile and
// implements the login, logout, verification and registration flows.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Store is the in-memory session. The credential is mirrored to a TokenStore,
// the profile lives in memory only and is re-fetched by Verify after a restart.
type Store struct {
	tokens TokenStore
	logger *slog.Logger

	mu      sync.RWMutex
	token   string
	profile *Profile
}

// NewStore loads any persisted credential. A store that cannot be read
// starts unauthenticated.
func NewStore(tokens TokenStore, logger *slog.Logger) *Store {
	s := &Store{
		tokens: tokens,
		logger: logger.With(slog.String("component", "session")),
	}
	token, err := tokens.Load()
	if err != nil {
		s.logger.Warn("Failed to load persisted credential", slog.Any("error", err))
		return s
	}
	s.token = token
	return s
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Profile returns a copy of the current profile.
func (s *Store) Profile() (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return Profile{}, false
	}
	p := *s.profile
	p.Permissions = append([]string(nil), s.profile.Permissions...)
	return p, true
}

// IsAuthenticated requires both a credential and a profile.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.profile != nil
}

// NeedsVerification reports a credential restored without its profile.
func (s *Store) NeedsVerification() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.profile == nil
}

func (s *Store) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return ""
	}
	return s.profile.Role
}

// HasRole is an exact match. Route checks use Role.Satisfies.
func (s *Store) HasRole(r Role) bool {
	return s.Role() == r
}

func (s *Store) HasPermission(perm string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile != nil && s.profile.HasPermission(perm)
}

func (s *Store) SystemAccount() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return ""
	}
	return s.profile.SystemAccount
}

func (s *Store) Claims() (Claims, bool) {
	return ParseClaims(s.Token())
}

// Set installs a new credential and profile and persists the credential.
// The in-memory session is updated even when persisting fails.
func (s *Store) Set(token string, profile Profile) error {
	s.mu.Lock()
	s.token = token
	s.profile = &profile
	s.mu.Unlock()

	if err := s.tokens.Save(token); err != nil {
		s.logger.Error("Failed to persist credential", slog.Any("error", err))
		return fmt.Errorf("persisting credential: %w", err)
	}
	return nil
}

func (s *Store) SetProfile(profile Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &profile
}

// UpdateProfile merges patch into the current profile. Keys use the JSON
// field names of Profile; unknown keys are ignored.
func (s *Store) UpdateProfile(patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := map[string]any{}
	if s.profile != nil {
		raw, err := json.Marshal(s.profile)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &merged); err != nil {
			return err
		}
	}
	for k, v := range patch {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encoding profile patch: %w", err)
	}
	var next Profile
	if err := json.Unmarshal(raw, &next); err != nil {
		return fmt.Errorf("applying profile patch: %w", err)
	}
	s.profile = &next
	return nil
}

// Clear drops the credential and profile and removes the persisted credential.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.profile = nil
	s.mu.Unlock()

	if err := s.tokens.Clear(); err != nil {
		s.logger.Error("Failed to remove persisted credential", slog.Any("error", err))
		return fmt.Errorf("clearing credential: %w", err)
	}
	return nil
}

// Invalidate is called when the server rejects the credential.
func (s *Store) Invalidate() {
	s.logger.Info("Credential rejected by server, clearing session")
	_ = s.Clear()
}
