package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAccountAddInvestmentIsIdempotent(t *testing.T) {
	var a Account
	a.AddInvestment("p1")
	a.AddInvestment("p2")
	a.AddInvestment("p1")

	if len(a.Investments) != 2 {
		t.Fatalf("expected 2 investments, got %v", a.Investments)
	}
	if a.Investments[0] != "p1" || a.Investments[1] != "p2" {
		t.Fatalf("insertion order not preserved: %v", a.Investments)
	}
}

func TestProjectAddInvestorIsIdempotent(t *testing.T) {
	var p Project
	p.AddInvestor("a1")
	p.AddInvestor("a1")
	if len(p.Investors) != 1 {
		t.Fatalf("expected 1 investor, got %v", p.Investors)
	}
}

func TestCloneDoesNotShareSlices(t *testing.T) {
	a := Account{Investments: []string{"p1"}}
	c := a.Clone()
	c.AddInvestment("p2")
	if len(a.Investments) != 1 {
		t.Fatalf("clone mutated original: %v", a.Investments)
	}

	p := Project{Investors: []string{"a1"}}
	pc := p.Clone()
	pc.Investors[0] = "changed"
	if p.Investors[0] != "a1" {
		t.Fatalf("clone mutated original: %v", p.Investors)
	}
}

func TestProjectRemaining(t *testing.T) {
	p := Project{
		TotalInvestment:   decimal.NewFromInt(100),
		CurrentInvestment: decimal.RequireFromString("59.99"),
	}
	if !p.Remaining().Equal(decimal.RequireFromString("40.01")) {
		t.Fatalf("unexpected remaining %s", p.Remaining())
	}
}

func TestAccountValidate(t *testing.T) {
	good := Account{Email: "a@b.c", Name: "Ada", Location: "Turin"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Account{
		{Email: "", Name: "Ada", Location: "Turin"},
		{Email: "a@b.c", Name: " ", Location: "Turin"},
		{Email: "a@b.c", Name: "Ada", Location: ""},
		{Email: "a@b.c", Name: "Ada", Location: "Turin", Balance: decimal.NewFromInt(-1)},
	}
	for i, a := range bads {
		if err := a.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestProjectValidate(t *testing.T) {
	good := Project{Name: "Solar", Location: "Bari", TotalInvestment: decimal.NewFromInt(100)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Project{
		{Name: "", Location: "Bari", TotalInvestment: decimal.NewFromInt(100)},
		{Name: "Solar", Location: "", TotalInvestment: decimal.NewFromInt(100)},
		{Name: "Solar", Location: "Bari"},
		{Name: "Solar", Location: "Bari", TotalInvestment: decimal.NewFromInt(10), CurrentInvestment: decimal.NewFromInt(11)},
		{Name: "Solar", Location: "Bari", TotalInvestment: decimal.NewFromInt(10), Capacity: decimal.NewFromInt(-1)},
	}
	for i, p := range bads {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{nil, ""},
		{ErrInvalidAmount, "validation"},
		{NotFound("account", "x"), "not_found"},
		{fmt.Errorf("wrap: %w", ErrInsufficientFunds), "insufficient_funds"},
		{ErrCapacityExceeded, "capacity_exceeded"},
		{Conflict("project", "p"), "conflict"},
		{Unavailable("load", errors.New("disk")), "storage_unavailable"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.kind {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.kind)
		}
	}
	if !IsRetryable(Conflict("account", "a")) {
		t.Error("conflict should be retryable")
	}
	if IsRetryable(ErrCapacityExceeded) {
		t.Error("capacity exceeded should not be retryable")
	}
}
