package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sourverse/internal/cache"
	"sourverse/internal/core"
	applog "sourverse/internal/log"
	"sourverse/internal/store"
)

const (
	projectListKey = "projects:all"
	projectListTTL = 30 * time.Second
)

type CreateProjectInput struct {
	Name            string
	Location        string
	Capacity        decimal.Decimal
	ExpectedReturn  decimal.Decimal
	TotalInvestment decimal.Decimal
}

// ProjectService creates projects and serves the cached project listing.
type ProjectService struct {
	repo   store.ProjectStore
	list   *cache.LRUCache[[]core.Project]
	logger *applog.Logger
}

func NewProjectService(repo store.ProjectStore, logger *applog.Logger) *ProjectService {
	return &ProjectService{
		repo:   repo,
		list:   cache.NewLRUCache[[]core.Project](1, projectListTTL),
		logger: applog.OrDefault(logger, applog.ComponentCache),
	}
}

// Cache exposes the listing cache for periodic sweeping.
func (s *ProjectService) Cache() cache.Cleaner { return s.list }

func (s *ProjectService) Create(ctx context.Context, in CreateProjectInput) (core.Project, error) {
	p := core.Project{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(in.Name),
		Location:        strings.TrimSpace(in.Location),
		Capacity:        in.Capacity,
		ExpectedReturn:  in.ExpectedReturn,
		TotalInvestment: in.TotalInvestment,
	}
	if err := p.Validate(); err != nil {
		return core.Project{}, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	if err := s.repo.CreateProject(ctx, p); err != nil {
		return core.Project{}, err
	}
	s.Invalidate()
	p.Version = 1
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (core.Project, error) {
	return s.repo.LoadProject(ctx, id)
}

// List returns every project in creation order.
func (s *ProjectService) List(ctx context.Context) ([]core.Project, error) {
	projects, err := s.list.GetOrLoad(ctx, projectListKey, s.repo.ListProjects)
	if err != nil {
		return nil, err
	}
	out := make([]core.Project, len(projects))
	for i, p := range projects {
		out[i] = p.Clone()
	}
	return out, nil
}

// Invalidate drops the cached listing after a write.
func (s *ProjectService) Invalidate() {
	s.list.Purge()
}
