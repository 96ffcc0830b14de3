package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"sourverse/internal/core"
)

func seed(t *testing.T) *Store {
	t.Helper()
	s := New()
	ctx := context.Background()
	if err := s.CreateAccount(ctx, core.Account{ID: "a1", Email: "A@x.io", Name: "A", Location: "L", Balance: decimal.NewFromInt(100)}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := s.CreateProject(ctx, core.Project{ID: "p1", Name: "P", Location: "L", TotalInvestment: decimal.NewFromInt(100)}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return s
}

func TestCreateAssignsVersionAndRejectsDuplicateEmail(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	a, err := s.LoadAccount(ctx, "a1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if a.Version != 1 {
		t.Fatalf("expected version 1, got %d", a.Version)
	}

	err = s.CreateAccount(ctx, core.Account{ID: "a2", Email: " a@X.io ", Name: "B", Location: "L"})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict on duplicate email, got %v", err)
	}

	byEmail, err := s.FindAccountByEmail(ctx, "a@x.io")
	if err != nil || byEmail.ID != "a1" {
		t.Fatalf("find by email: %+v %v", byEmail, err)
	}
}

func TestLoadMissing(t *testing.T) {
	s := New()
	if _, err := s.LoadAccount(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.LoadProject(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSaveDetectsStaleVersion(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	first, _ := s.LoadAccount(ctx, "a1")
	second, _ := s.LoadAccount(ctx, "a1")

	first.Balance = decimal.NewFromInt(90)
	if err := s.SaveAccount(ctx, first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second.Balance = decimal.NewFromInt(80)
	if err := s.SaveAccount(ctx, second); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, _ := s.LoadAccount(ctx, "a1")
	if !got.Balance.Equal(decimal.NewFromInt(90)) || got.Version != 2 {
		t.Fatalf("unexpected stored account: %+v", got)
	}
}

func TestCommitTransferIsAllOrNothing(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	a, _ := s.LoadAccount(ctx, "a1")
	p, _ := s.LoadProject(ctx, "p1")

	// Bump the project behind the caller's back.
	other, _ := s.LoadProject(ctx, "p1")
	other.Name = "renamed"
	if err := s.SaveProject(ctx, other); err != nil {
		t.Fatalf("save project: %v", err)
	}

	a.Balance = decimal.NewFromInt(40)
	p.CurrentInvestment = decimal.NewFromInt(60)
	if err := s.CommitTransfer(ctx, a, p); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, _ := s.LoadAccount(ctx, "a1")
	if !got.Balance.Equal(decimal.NewFromInt(100)) || got.Version != 1 {
		t.Fatalf("account must be untouched: %+v", got)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	a, _ := s.LoadAccount(ctx, "a1")
	p, _ := s.LoadProject(ctx, "p1")
	a.AddInvestment("p1")
	p.AddInvestor("a1")
	if err := s.CommitTransfer(ctx, a, p); err != nil {
		t.Fatalf("commit: %v", err)
	}
	a.Investments[0] = "mutated"

	got, _ := s.LoadAccount(ctx, "a1")
	if got.Investments[0] != "p1" {
		t.Fatalf("stored account shares memory with caller: %v", got.Investments)
	}

	list, _ := s.ListProjects(ctx)
	if len(list) != 1 || list[0].ID != "p1" || len(list[0].Investors) != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}
}
