package store

import (
	"context"

	"sourverse/internal/core"
)

// Ports consumed by the ledger and the HTTP collaborators.
//
// Load methods return a wrapped core.ErrNotFound when the record is absent.
// Save methods compare the stored Version with the one carried by the record
// and return a wrapped core.ErrConflict when they differ; on success the
// stored Version is incremented.
type (
	AccountStore interface {
		LoadAccount(ctx context.Context, id string) (core.Account, error)
		SaveAccount(ctx context.Context, a core.Account) error
		// CreateAccount assigns Version 1. A duplicate email is a conflict.
		CreateAccount(ctx context.Context, a core.Account) error
		FindAccountByEmail(ctx context.Context, email string) (core.Account, error)
	}

	ProjectStore interface {
		LoadProject(ctx context.Context, id string) (core.Project, error)
		SaveProject(ctx context.Context, p core.Project) error
		CreateProject(ctx context.Context, p core.Project) error
		ListProjects(ctx context.Context) ([]core.Project, error)
	}

	// TransferCommitter persists an account and a project as one unit.
	// Either both versions still match and both records are written, or
	// nothing is written and a wrapped core.ErrConflict is returned.
	TransferCommitter interface {
		CommitTransfer(ctx context.Context, a core.Account, p core.Project) error
	}

	// Repository is everything a backend provides.
	Repository interface {
		AccountStore
		ProjectStore
		TransferCommitter
		Close() error
	}
)
