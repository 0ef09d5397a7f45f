package codestore

import (
	"context"
	"sync"
	"time"
)

type memKey struct {
	purpose Purpose
	value   string
}

// MemoryStore is a process-local Store for single instance deployments and
// tests. Expired entries are dropped lazily.
type MemoryStore struct {
	mu       sync.Mutex
	byPerson map[memKey]Entry
	byCode   map[memKey]string
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byPerson: make(map[memKey]Entry),
		byCode:   make(map[memKey]string),
		now:      time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, purpose Purpose, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	codeKey := memKey{purpose, entry.Code}
	if holder, ok := s.byCode[codeKey]; ok && holder != entry.PersonID {
		if current, live := s.byPerson[memKey{purpose, holder}]; live && now.Before(current.ExpiresAt) {
			return ErrCodeInUse
		}
		s.deleteLocked(purpose, holder)
	}

	s.deleteLocked(purpose, entry.PersonID)
	s.byPerson[memKey{purpose, entry.PersonID}] = entry
	s.byCode[codeKey] = entry.PersonID
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, purpose Purpose, code string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(purpose, code)
}

func (s *MemoryStore) Take(_ context.Context, purpose Purpose, code string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.lookupLocked(purpose, code)
	if err != nil {
		return Entry{}, err
	}
	s.deleteLocked(purpose, entry.PersonID)
	return entry, nil
}

func (s *MemoryStore) Remove(_ context.Context, purpose Purpose, personID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(purpose, personID)
	return nil
}

// Prune drops every expired entry and reports how many were removed.
func (s *MemoryStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.byPerson {
		if !now.Before(entry.ExpiresAt) {
			s.deleteLocked(key.purpose, key.value)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) lookupLocked(purpose Purpose, code string) (Entry, error) {
	personID, ok := s.byCode[memKey{purpose, code}]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry, ok := s.byPerson[memKey{purpose, personID}]
	if !ok || entry.Code != code {
		delete(s.byCode, memKey{purpose, code})
		return Entry{}, ErrNotFound
	}
	if !s.now().Before(entry.ExpiresAt) {
		s.deleteLocked(purpose, personID)
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func (s *MemoryStore) deleteLocked(purpose Purpose, personID string) {
	key := memKey{purpose, personID}
	if entry, ok := s.byPerson[key]; ok {
		delete(s.byCode, memKey{purpose, entry.Code})
		delete(s.byPerson, key)
	}
}
