// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"sync"

	"nutriplano/internal/model"
	"nutriplano/internal/repository"
)

// ProfileStore is an in-memory repository.ProfileRepository. Each write
// replaces the whole row under the mutex, like a single UPDATE statement.
type ProfileStore struct {
	mu       sync.RWMutex
	rows     map[string]model.Profile
	writes   []repository.EntitlementUpdate
	reads    int
	failNext error
}

func NewProfileStore(profiles ...model.Profile) *ProfileStore {
	s := &ProfileStore{rows: make(map[string]model.Profile)}
	for _, p := range profiles {
		s.rows[p.UserID] = p
	}
	return s
}

func (s *ProfileStore) GetProfileByID(ctx context.Context, userID string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	p, ok := s.rows[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *ProfileStore) ApplyEntitlement(ctx context.Context, u repository.EntitlementUpdate) (*repository.EntitlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	current, ok := s.rows[u.UserID]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	next, res := repository.ResolveEntitlement(current, u)
	s.rows[u.UserID] = next
	s.writes = append(s.writes, u)
	return &res, nil
}

func (s *ProfileStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// Profile returns a copy of the stored row.
func (s *ProfileStore) Profile(userID string) (model.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[userID]
	return p, ok
}

// Writes returns every applied update in order.
func (s *ProfileStore) Writes() []repository.EntitlementUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]repository.EntitlementUpdate(nil), s.writes...)
}

// Reads returns how many times GetProfileByID was called.
func (s *ProfileStore) Reads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads
}

// Fail makes the next store call return err.
func (s *ProfileStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}
