package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"sourverse/internal/core"
	applog "sourverse/internal/log"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	_, err := NewFromEnv(context.Background(), "  ", "", nil)
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	for _, key := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(key, "")
	}
	_, err := NewFromEnv(context.Background(), "sheet-id", "", nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestNewFromEnv_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/nonexistent/creds.json")
	_, err := NewFromEnv(context.Background(), "sheet-id", "", nil)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Investments", 2025, "2025 Investments"},
		{"  Investments ", 2024, "2024 Investments"},
		{"2023 Investments", 2025, "2023 Investments"},
		{"", 2025, ""},
		{"12345", 2025, "2025 12345"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
				t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
			}
		})
	}
}

func TestClient_AppendInvestment(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotBody gsheet.ValueRange
		gotOpts string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		gotOpts = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"updates":{"updatedRange":"'2025 Investments'!A7:F7"}}`))
	}))
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	c := New(svc, "sheet-id", "", applog.Discard())

	ref, err := c.AppendInvestment(context.Background(), core.Investment{
		AccountID:         "a1",
		ProjectID:         "p1",
		Amount:            decimal.RequireFromString("30.5"),
		Balance:           decimal.RequireFromString("69.5"),
		CurrentInvestment: decimal.RequireFromString("130.5"),
		At:                time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "'2025 Investments'!A7:F7" {
		t.Errorf("unexpected ref %q", ref)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(gotPath, "/spreadsheets/sheet-id/values/") || !strings.HasSuffix(gotPath, ":append") {
		t.Errorf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotPath, "2025 Investments!A:F") {
		t.Errorf("expected year tab in path, got %q", gotPath)
	}
	if !strings.Contains(gotOpts, "insertDataOption=INSERT_ROWS") || !strings.Contains(gotOpts, "valueInputOption=USER_ENTERED") {
		t.Errorf("unexpected query %q", gotOpts)
	}
	if len(gotBody.Values) != 1 || len(gotBody.Values[0]) != 6 {
		t.Fatalf("unexpected body %+v", gotBody.Values)
	}
	want := []string{"2025-03-04T10:00:00Z", "a1", "p1", "30.5", "69.5", "130.5"}
	for i, w := range want {
		if gotBody.Values[0][i] != w {
			t.Errorf("column %d = %v, want %v", i, gotBody.Values[0][i], w)
		}
	}
}

func TestClient_AppendInvestmentValidation(t *testing.T) {
	c := &Client{}
	if _, err := c.AppendInvestment(context.Background(), core.Investment{}); err == nil {
		t.Fatal("expected error without service")
	}

	svc, _ := gsheet.NewService(context.Background(),
		goption.WithEndpoint("http://127.0.0.1:1/"),
		goption.WithHTTPClient(http.DefaultClient))
	c = New(svc, "id", "", applog.Discard())
	_, err := c.AppendInvestment(context.Background(), core.Investment{ProjectID: "p"})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
