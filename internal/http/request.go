package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"sourverse/internal/auth"
	"sourverse/internal/core"
)

type (
	registerRequest struct {
		Email             string `json:"email"`
		Password          string `json:"password"`
		Name              string `json:"name"`
		Location          string `json:"location"`
		EnergyPreferences string `json:"energyPreferences"`
	}

	loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	projectRequest struct {
		Name            string          `json:"name"`
		Location        string          `json:"location"`
		Capacity        decimal.Decimal `json:"capacity"`
		ExpectedReturn  decimal.Decimal `json:"expectedReturn"`
		TotalInvestment decimal.Decimal `json:"totalInvestment"`
	}

	topUpRequest struct {
		UserID string          `json:"userId"`
		Amount decimal.Decimal `json:"amount"`
	}

	investRequest struct {
		UserID    string          `json:"userId"`
		ProjectID string          `json:"projectId"`
		Amount    decimal.Decimal `json:"amount"`
	}
)

// decodeJSON reads one JSON object from the body into dst. Every failure is
// a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is empty", core.ErrValidation)
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: request body too large", core.ErrValidation)
		default:
			return fmt.Errorf("%w: invalid JSON body: %v", core.ErrValidation, err)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must hold a single JSON object", core.ErrValidation)
	}
	return nil
}

// userID prefers the explicit id from the request and falls back to the
// subject of a verified bearer token.
func userID(r *http.Request, explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	if sub, ok := auth.Subject(r.Context()); ok {
		return sub
	}
	return ""
}

func requireID(name, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", core.ErrValidation, name)
	}
	return nil
}
