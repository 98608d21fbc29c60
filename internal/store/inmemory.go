package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zapleads/zapleads/internal/models"
)

// InMemoryStore is a Store backed by process memory. It is used by tests and
// by local development without a database.
type InMemoryStore struct {
	mu           sync.RWMutex
	leads        map[string]*models.Lead
	interactions []models.Interaction
	owners       []models.Owner
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{leads: make(map[string]*models.Lead)}
}

// SeedOwners sets the owner list returned by ListOwners.
func (s *InMemoryStore) SeedOwners(owners []models.Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners = owners
}

// FindActiveLead returns the newest non-terminal lead matching any phone variant.
func (s *InMemoryStore) FindActiveLead(ctx context.Context, phoneVariants []string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	variants := make(map[string]bool, len(phoneVariants))
	for _, v := range phoneVariants {
		variants[v] = true
	}
	var matches []*models.Lead
	for _, l := range s.leads {
		if variants[l.Telefone] && !l.Status.IsTerminal() {
			matches = append(matches, l)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CriadoEm.After(matches[j].CriadoEm)
	})
	copied := *matches[0]
	return &copied, nil
}

// GetLead returns the lead with the given ID.
func (s *InMemoryStore) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, nil
	}
	copied := *l
	return &copied, nil
}

// CreateLead persists a new lead.
func (s *InMemoryStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *lead
	s.leads[lead.ID] = &copied
	return nil
}

// UpdateStatus sets the lead's status.
func (s *InMemoryStore) UpdateStatus(ctx context.Context, id string, status models.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leads[id]; ok {
		l.Status = status
	}
	return nil
}

// UpdatePhone repairs the lead's stored phone representation.
func (s *InMemoryStore) UpdatePhone(ctx context.Context, id, telefone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leads[id]; ok {
		l.Telefone = telefone
	}
	return nil
}

// ResetQualification returns the lead to the start of the flow.
func (s *InMemoryStore) ResetQualification(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leads[id]; ok {
		l.Status = models.StatusNovo
		l.PercentualConclusao = models.InitialCompletion
		l.FollowUpCount = 0
		l.LastFollowUpAt = nil
	}
	return nil
}

// UpdateQualification records flow progress.
func (s *InMemoryStore) UpdateQualification(ctx context.Context, id string, percentual int, idade, planoDesejado string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leads[id]; ok {
		l.PercentualConclusao = percentual
		if idade != "" {
			l.Idade = idade
		}
		if planoDesejado != "" {
			l.PlanoDesejado = planoDesejado
		}
	}
	return nil
}

// UpdateFollowUp advances the reminder bookkeeping.
func (s *InMemoryStore) UpdateFollowUp(ctx context.Context, id string, count int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leads[id]; ok {
		l.FollowUpCount = count
		t := at
		l.LastFollowUpAt = &t
	}
	return nil
}

// UpdateLastButtons mirrors the buttons cache into the lead.
func (s *InMemoryStore) UpdateLastButtons(ctx context.Context, id string, labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leads[id]; ok {
		copied := make([]string, len(labels))
		copy(copied, labels)
		l.LastButtons = copied
	}
	return nil
}

// LogInteraction appends an audit record.
func (s *InMemoryStore) LogInteraction(ctx context.Context, interaction *models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, *interaction)
	return nil
}

// Interactions returns all logged interactions, for tests.
func (s *InMemoryStore) Interactions() []models.Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Interaction, len(s.interactions))
	copy(out, s.interactions)
	return out
}

// ListOwners returns the seeded owner list.
func (s *InMemoryStore) ListOwners(ctx context.Context) ([]models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Owner, len(s.owners))
	copy(out, s.owners)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
