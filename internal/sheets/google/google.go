package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"sourverse/internal/core"
	applog "sourverse/internal/log"
	ports "sourverse/internal/sheets"
)

const DefaultSheetName = "Investments"

// Ensure interface conformance
var _ ports.InvestmentJournal = (*Client)(nil)

// Client appends investment journal rows to a spreadsheet. Rows go to a
// per-year tab ("2025 Investments") chosen from the investment timestamp.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *applog.Logger
}

// New builds a client around an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheetBase string, logger *applog.Logger) *Client {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = DefaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		logger:        applog.OrDefault(logger, applog.ComponentSheets),
	}
}

// NewFromEnv creates a Sheets client authenticated with a service account.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context, spreadsheetID, sheetBase string, logger *applog.Logger) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	creds, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return New(svc, spreadsheetID, sheetBase, logger), nil
}

func serviceAccountCredentials() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// AppendInvestment writes one row: timestamp, account, project, amount,
// resulting balance, resulting project total.
func (c *Client) AppendInvestment(ctx context.Context, inv core.Investment) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if inv.AccountID == "" || inv.ProjectID == "" {
		return "", fmt.Errorf("%w: journal row needs account and project", core.ErrValidation)
	}

	at := inv.At
	if at.IsZero() {
		at = time.Now()
	}
	sheet := yearPrefixedName(c.sheetBase, at.Year())
	rng := fmt.Sprintf("%s!A:F", sheet)
	vr := &gsheet.ValueRange{Values: [][]any{investmentRow(inv, at)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp != nil && resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Investment appended to sheet",
		applog.FieldAccountID, inv.AccountID,
		applog.FieldProjectID, inv.ProjectID,
		applog.FieldSheetsRef, ref)
	return ref, nil
}

func investmentRow(inv core.Investment, at time.Time) []any {
	return []any{
		at.UTC().Format(time.RFC3339),
		inv.AccountID,
		inv.ProjectID,
		inv.Amount.String(),
		inv.Balance.String(),
		inv.CurrentInvestment.String(),
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
