package memory

import (
	"context"
	"strings"
	"sync"

	"sourverse/internal/core"
	"sourverse/internal/store"
)

// Ensure interface conformance
var _ store.Repository = (*Store)(nil)

// Store keeps accounts and projects in process memory. Records are cloned on
// the way in and out so callers never share slices with the stored copy.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]core.Account
	projects map[string]core.Project
	emails   map[string]string // normalized email -> account id
	order    []string          // project ids in creation order
}

func New() *Store {
	return &Store{
		accounts: make(map[string]core.Account),
		projects: make(map[string]core.Project),
		emails:   make(map[string]string),
	}
}

func (s *Store) LoadAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, core.NotFound("account", id)
	}
	return a.Clone(), nil
}

func (s *Store) FindAccountByEmail(_ context.Context, email string) (core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[normalizeEmail(email)]
	if !ok {
		return core.Account{}, core.NotFound("account", email)
	}
	return s.accounts[id].Clone(), nil
}

func (s *Store) CreateAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeEmail(a.Email)
	if _, ok := s.emails[key]; ok {
		return core.Conflict("account email", a.Email)
	}
	if _, ok := s.accounts[a.ID]; ok {
		return core.Conflict("account", a.ID)
	}
	a = a.Clone()
	a.Version = 1
	s.accounts[a.ID] = a
	s.emails[key] = a.ID
	return nil
}

func (s *Store) SaveAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAccount(a); err != nil {
		return err
	}
	s.putAccount(a)
	return nil
}

func (s *Store) LoadProject(_ context.Context, id string) (core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return core.Project{}, core.NotFound("project", id)
	}
	return p.Clone(), nil
}

func (s *Store) CreateProject(_ context.Context, p core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; ok {
		return core.Conflict("project", p.ID)
	}
	p = p.Clone()
	p.Version = 1
	s.projects[p.ID] = p
	s.order = append(s.order, p.ID)
	return nil
}

func (s *Store) SaveProject(_ context.Context, p core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkProject(p); err != nil {
		return err
	}
	s.putProject(p)
	return nil
}

// ListProjects returns projects in creation order.
func (s *Store) ListProjects(_ context.Context) ([]core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Project, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.projects[id].Clone())
	}
	return out, nil
}

func (s *Store) CommitTransfer(_ context.Context, a core.Account, p core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAccount(a); err != nil {
		return err
	}
	if err := s.checkProject(p); err != nil {
		return err
	}
	s.putAccount(a)
	s.putProject(p)
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) checkAccount(a core.Account) error {
	cur, ok := s.accounts[a.ID]
	if !ok {
		return core.NotFound("account", a.ID)
	}
	if cur.Version != a.Version {
		return core.Conflict("account", a.ID)
	}
	return nil
}

func (s *Store) checkProject(p core.Project) error {
	cur, ok := s.projects[p.ID]
	if !ok {
		return core.NotFound("project", p.ID)
	}
	if cur.Version != p.Version {
		return core.Conflict("project", p.ID)
	}
	return nil
}

func (s *Store) putAccount(a core.Account) {
	a = a.Clone()
	a.Version++
	s.accounts[a.ID] = a
}

func (s *Store) putProject(p core.Project) {
	p = p.Clone()
	p.Version++
	s.projects[p.ID] = p
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
