package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"sourverse/internal/core"
	applog "sourverse/internal/log"
	"sourverse/internal/store"
)

var _ store.Repository = (*SQLiteRepository)(nil)

// SQLiteRepository persists accounts and projects with a version column per
// row. Saves are compare-and-swap on that column.
type SQLiteRepository struct {
	db     *sql.DB
	logger *applog.Logger
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DSN adds the pragmas the repository relies on to a database path.
func DSN(dbPath string) string {
	v := url.Values{}
	v.Add("_pragma", "busy_timeout(5000)")
	v.Add("_pragma", "journal_mode(WAL)")
	v.Add("_pragma", "foreign_keys(1)")
	return "file:" + dbPath + "?" + v.Encode()
}

func NewSQLiteRepository(dbPath string, logger *applog.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := DSN(dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; transactions queue in the pool instead of
	// failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: applog.OrDefault(logger, applog.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.Unavailable("ping", err)
	}
	return nil
}

const accountColumns = `id, email, password_hash, name, location, energy_preferences, balance, version`

func (r *SQLiteRepository) LoadAccount(ctx context.Context, id string) (core.Account, error) {
	var a core.Account
	err := r.readTx(ctx, func(q querier) error {
		var err error
		a, err = loadAccount(ctx, q, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.NotFound("account", id)
	}
	if err != nil {
		return core.Account{}, r.classify("load account", err)
	}
	return a, nil
}

func (r *SQLiteRepository) FindAccountByEmail(ctx context.Context, email string) (core.Account, error) {
	var a core.Account
	err := r.readTx(ctx, func(q querier) error {
		var err error
		a, err = loadAccount(ctx, q, `SELECT `+accountColumns+` FROM accounts WHERE email_key = ?`, emailKey(email))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.NotFound("account", email)
	}
	if err != nil {
		return core.Account{}, r.classify("find account", err)
	}
	return a, nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) error {
	err := r.writeTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, email, email_key, password_hash, name, location, energy_preferences, balance, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			a.ID, a.Email, emailKey(a.Email), a.PasswordHash, a.Name, a.Location, a.EnergyPreferences, a.Balance.String())
		if err != nil {
			return err
		}
		return insertAccountInvestments(ctx, tx, a)
	})
	if isConstraint(err) {
		return core.Conflict("account", a.Email)
	}
	if err != nil {
		return r.classify("create account", err)
	}
	return nil
}

func (r *SQLiteRepository) SaveAccount(ctx context.Context, a core.Account) error {
	err := r.writeTx(ctx, func(tx *sql.Tx) error {
		return saveAccount(ctx, tx, a)
	})
	return r.classify("save account", err)
}

const projectColumns = `id, name, location, capacity, expected_return, total_investment, current_investment, version`

func (r *SQLiteRepository) LoadProject(ctx context.Context, id string) (core.Project, error) {
	var p core.Project
	err := r.readTx(ctx, func(q querier) error {
		var err error
		p, err = loadProject(ctx, q, id)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, core.NotFound("project", id)
	}
	if err != nil {
		return core.Project{}, r.classify("load project", err)
	}
	return p, nil
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p core.Project) error {
	err := r.writeTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, name, location, capacity, expected_return, total_investment, current_investment, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
			p.ID, p.Name, p.Location, p.Capacity.String(), p.ExpectedReturn.String(),
			p.TotalInvestment.String(), p.CurrentInvestment.String())
		if err != nil {
			return err
		}
		return insertProjectInvestors(ctx, tx, p)
	})
	if isConstraint(err) {
		return core.Conflict("project", p.ID)
	}
	if err != nil {
		return r.classify("create project", err)
	}
	return nil
}

func (r *SQLiteRepository) SaveProject(ctx context.Context, p core.Project) error {
	err := r.writeTx(ctx, func(tx *sql.Tx) error {
		return saveProject(ctx, tx, p)
	})
	return r.classify("save project", err)
}

// ListProjects returns projects in creation order.
func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]core.Project, error) {
	var out []core.Project
	err := r.readTx(ctx, func(q querier) error {
		rows, err := q.QueryContext(ctx, `SELECT id FROM projects ORDER BY rowid`)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		out = make([]core.Project, 0, len(ids))
		for _, id := range ids {
			p, err := loadProject(ctx, q, id)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, r.classify("list projects", err)
	}
	return out, nil
}

// CommitTransfer writes both records in one transaction. A version mismatch
// on either row rolls the whole transaction back.
func (r *SQLiteRepository) CommitTransfer(ctx context.Context, a core.Account, p core.Project) error {
	err := r.writeTx(ctx, func(tx *sql.Tx) error {
		if err := saveAccount(ctx, tx, a); err != nil {
			return err
		}
		return saveProject(ctx, tx, p)
	})
	if err != nil {
		return r.classify("commit transfer", err)
	}
	r.logger.Debug("Transfer committed",
		applog.FieldAccountID, a.ID,
		applog.FieldProjectID, p.ID)
	return nil
}

func (r *SQLiteRepository) readTx(ctx context.Context, fn func(querier) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) writeTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// classify maps driver errors onto the core taxonomy. Errors that already
// belong to it pass through unchanged.
func (r *SQLiteRepository) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrConflict):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isBusy(err):
		return fmt.Errorf("%w: %s: database busy", core.ErrConflict, op)
	default:
		r.logger.Error("SQLite operation failed", applog.FieldOperation, op, applog.FieldError, err)
		return core.Unavailable(op, err)
	}
}

func loadAccount(ctx context.Context, q querier, query string, arg string) (core.Account, error) {
	var (
		a       core.Account
		balance string
	)
	err := q.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.Location, &a.EnergyPreferences, &balance, &a.Version)
	if err != nil {
		return core.Account{}, err
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return core.Account{}, fmt.Errorf("account %s balance: %w", a.ID, err)
	}
	a.Investments, err = listIDs(ctx, q,
		`SELECT project_id FROM account_investments WHERE account_id = ? ORDER BY seq`, a.ID)
	if err != nil {
		return core.Account{}, err
	}
	return a, nil
}

func loadProject(ctx context.Context, q querier, id string) (core.Project, error) {
	var (
		p                               core.Project
		capacity, expected, total, curr string
	)
	err := q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id).Scan(
		&p.ID, &p.Name, &p.Location, &capacity, &expected, &total, &curr, &p.Version)
	if err != nil {
		return core.Project{}, err
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.Capacity, capacity},
		{&p.ExpectedReturn, expected},
		{&p.TotalInvestment, total},
		{&p.CurrentInvestment, curr},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return core.Project{}, fmt.Errorf("project %s: %w", p.ID, err)
		}
	}
	p.Investors, err = listIDs(ctx, q,
		`SELECT account_id FROM project_investors WHERE project_id = ? ORDER BY seq`, p.ID)
	if err != nil {
		return core.Project{}, err
	}
	return p, nil
}

func listIDs(ctx context.Context, q querier, query, arg string) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func saveAccount(ctx context.Context, tx *sql.Tx, a core.Account) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET name = ?, location = ?, energy_preferences = ?, password_hash = ?, balance = ?,
		    version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`,
		a.Name, a.Location, a.EnergyPreferences, a.PasswordHash, a.Balance.String(), a.ID, a.Version)
	if err != nil {
		return err
	}
	if err := checkSwapped(ctx, tx, res, "accounts", "account", a.ID); err != nil {
		return err
	}
	return insertAccountInvestments(ctx, tx, a)
}

func saveProject(ctx context.Context, tx *sql.Tx, p core.Project) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE projects
		SET name = ?, location = ?, capacity = ?, expected_return = ?, total_investment = ?,
		    current_investment = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`,
		p.Name, p.Location, p.Capacity.String(), p.ExpectedReturn.String(), p.TotalInvestment.String(),
		p.CurrentInvestment.String(), p.ID, p.Version)
	if err != nil {
		return err
	}
	if err := checkSwapped(ctx, tx, res, "projects", "project", p.ID); err != nil {
		return err
	}
	return insertProjectInvestors(ctx, tx, p)
}

// checkSwapped turns a zero-row UPDATE into NotFound or Conflict.
func checkSwapped(ctx context.Context, tx *sql.Tx, res sql.Result, table, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NotFound(kind, id)
	}
	if err != nil {
		return err
	}
	return core.Conflict(kind, id)
}

// Membership lists only grow, so existing rows are left in place and the
// slice index becomes the ordering key for new ones.
func insertAccountInvestments(ctx context.Context, tx *sql.Tx, a core.Account) error {
	for i, pid := range a.Investments {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO account_investments (account_id, project_id, seq) VALUES (?, ?, ?)`,
			a.ID, pid, i); err != nil {
			return err
		}
	}
	return nil
}

func insertProjectInvestors(ctx context.Context, tx *sql.Tx, p core.Project) error {
	for i, aid := range p.Investors {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO project_investors (project_id, account_id, seq) VALUES (?, ?, ?)`,
			p.ID, aid, i); err != nil {
			return err
		}
	}
	return nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

func isBusy(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code&0xff == sqlite3.SQLITE_BUSY || code&0xff == sqlite3.SQLITE_LOCKED)
}

func isConstraint(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code&0xff == sqlite3.SQLITE_CONSTRAINT
}
