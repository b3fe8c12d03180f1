package twofa

import (
	"context"
	"sync"
)

// InMemProfileRepository implements ProfileRepository using an in-memory map
type InMemProfileRepository struct {
	profiles map[string]TwoFactorProfile
	mu       sync.RWMutex
}

// NewInMemProfileRepository creates a new in-memory profile repository
func NewInMemProfileRepository() *InMemProfileRepository {
	return &InMemProfileRepository{
		profiles: make(map[string]TwoFactorProfile),
	}
}

func (r *InMemProfileRepository) GetProfile(ctx context.Context, userID string) (TwoFactorProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[userID]
	if !ok {
		return TwoFactorProfile{}, ErrProfileNotFound
	}
	return profile, nil
}

func (r *InMemProfileRepository) CreateProfile(ctx context.Context, profile TwoFactorProfile) (TwoFactorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[profile.UserID]; ok {
		return TwoFactorProfile{}, ErrProfileExists
	}
	r.profiles[profile.UserID] = profile
	return profile, nil
}

func (r *InMemProfileRepository) UpsertProfile(ctx context.Context, profile TwoFactorProfile) (TwoFactorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles[profile.UserID] = profile
	return profile, nil
}

func (r *InMemProfileRepository) DeleteProfile(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[userID]; !ok {
		return ErrProfileNotFound
	}
	delete(r.profiles, userID)
	return nil
}
