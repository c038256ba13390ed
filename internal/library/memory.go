package library

import (
	"context"
	"fmt"
	"sync"

	"github.com/fetcharr/fetcharr/internal/profile"
	"github.com/fetcharr/fetcharr/internal/release"
)

// MemoryStore is an in-memory Store. Targets are stored by value and handed
// out as copies so readers never observe concurrent mutation.
type MemoryStore struct {
	mu           sync.RWMutex
	targets      map[TargetID]Target
	profiles     map[int64]profile.QualityProfile
	formats      []profile.CustomFormat
	restrictions []profile.Restriction
	delays       []profile.DelayProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		targets:  make(map[TargetID]Target),
		profiles: make(map[int64]profile.QualityProfile),
	}
}

func (s *MemoryStore) PutTarget(t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[t.ID] = t
}

func (s *MemoryStore) PutQualityProfile(p profile.QualityProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *MemoryStore) SetCustomFormats(formats []profile.CustomFormat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formats = formats
}

func (s *MemoryStore) SetRestrictions(restrictions []profile.Restriction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restrictions = restrictions
}

func (s *MemoryStore) SetDelayProfiles(delays []profile.DelayProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = delays
}

func (s *MemoryStore) GetTarget(_ context.Context, id TargetID) (*Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	copied := t
	return &copied, nil
}

func (s *MemoryStore) ListMonitored(_ context.Context) ([]*Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Target
	for _, t := range s.targets {
		if t.Monitored {
			copied := t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) MatchTarget(_ context.Context, parsed *release.ParsedRelease) (*Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.targets {
		if !t.Monitored {
			continue
		}
		if t.Matches(parsed) {
			copied := t
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SetCurrentFile(_ context.Context, id TargetID, tier, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	t.CurrentFileTier = tier
	t.CurrentFilePath = path
	s.targets[id] = t
	return nil
}

func (s *MemoryStore) QualityProfile(_ context.Context, id int64) (*profile.QualityProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("quality profile %d not found", id)
	}
	copied := p
	return &copied, nil
}

func (s *MemoryStore) CustomFormats(_ context.Context) ([]profile.CustomFormat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.formats, nil
}

func (s *MemoryStore) Restrictions(_ context.Context) ([]profile.Restriction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restrictions, nil
}

func (s *MemoryStore) DelayProfiles(_ context.Context) ([]profile.DelayProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delays, nil
}
