package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"crcbank/internal/model"

	_ "modernc.org/sqlite"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore keeps the ledger in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	q    queryer
	inTx bool
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: writes are serialized and :memory: databases stay shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, q: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite ledger opened: %s", dbPath)
	return s, nil
}

// DB exposes the underlying handle so the action recorder can share the file.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS proposals (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			account          TEXT NOT NULL UNIQUE,
			proposal_type    INTEGER NOT NULL,
			percent_notified INTEGER NOT NULL,
			start_date       TEXT NOT NULL,
			end_date         TEXT NOT NULL,
			allocations      TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS investments (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			account       TEXT NOT NULL,
			service_units INTEGER NOT NULL,
			current_sus   INTEGER NOT NULL,
			withdrawn_sus INTEGER NOT NULL,
			rollover_sus  INTEGER NOT NULL,
			start_date    TEXT NOT NULL,
			end_date      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_investments_account ON investments(account)`,

		`CREATE TABLE IF NOT EXISTS investment_archives (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			investment_id   INTEGER NOT NULL,
			proposal_id     INTEGER NOT NULL,
			period_start    TEXT NOT NULL,
			account         TEXT NOT NULL,
			service_units   INTEGER NOT NULL,
			current_sus     INTEGER NOT NULL,
			withdrawn_sus   INTEGER NOT NULL,
			rollover_sus    INTEGER NOT NULL,
			start_date      TEXT NOT NULL,
			end_date        TEXT NOT NULL,
			exhaustion_date TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_investment_archives_proposal ON investment_archives(proposal_id)`,

		`CREATE TABLE IF NOT EXISTS proposal_archives (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			proposal_id   INTEGER NOT NULL,
			account       TEXT NOT NULL,
			proposal_type INTEGER NOT NULL,
			start_date    TEXT NOT NULL,
			end_date      TEXT NOT NULL,
			allocations   TEXT NOT NULL,
			usage         TEXT NOT NULL,
			archived_on   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proposal_archives_account ON proposal_archives(account)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Atomic runs fn inside a transaction. Nested calls reuse the outer transaction.
func (s *SQLiteStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&SQLiteStore{db: s.db, q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("[ERROR] rollback: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.inTx {
		return nil
	}
	log.Println("[INFO] closing sqlite ledger")
	return s.db.Close()
}

const proposalColumns = `id, account, proposal_type, percent_notified, start_date, end_date, allocations`

func (s *SQLiteStore) FindProposal(ctx context.Context, account string) (*model.Proposal, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE account = ?`, account)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find proposal %s: %w", account, err)
	}
	return p, nil
}

func (s *SQLiteStore) ListProposals(ctx context.Context) ([]model.Proposal, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+proposalColumns+` FROM proposals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var out []model.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertProposal(ctx context.Context, p *model.Proposal) error {
	alloc, err := json.Marshal(p.Allocations)
	if err != nil {
		return fmt.Errorf("marshal allocations: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `INSERT INTO proposals
		(id, account, proposal_type, percent_notified, start_date, end_date, allocations)
		VALUES (?,?,?,?,?,?,?)`,
		nullID(p.ID), p.Account, int(p.Type), int(p.PercentNotified),
		formatDate(p.StartDate), formatDate(p.EndDate), string(alloc),
	)
	if err != nil {
		return fmt.Errorf("insert proposal %s: %w", p.Account, err)
	}
	return assignID(res, &p.ID)
}

func (s *SQLiteStore) UpdateProposal(ctx context.Context, p *model.Proposal) error {
	alloc, err := json.Marshal(p.Allocations)
	if err != nil {
		return fmt.Errorf("marshal allocations: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `UPDATE proposals SET
		account = ?, proposal_type = ?, percent_notified = ?, start_date = ?, end_date = ?, allocations = ?
		WHERE id = ?`,
		p.Account, int(p.Type), int(p.PercentNotified),
		formatDate(p.StartDate), formatDate(p.EndDate), string(alloc), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update proposal %d: %w", p.ID, err)
	}
	return requireRow(res)
}

const investmentColumns = `id, account, service_units, current_sus, withdrawn_sus, rollover_sus, start_date, end_date`

func (s *SQLiteStore) FindInvestments(ctx context.Context, account string) ([]model.Investment, error) {
	return s.queryInvestments(ctx, `SELECT `+investmentColumns+` FROM investments WHERE account = ? ORDER BY id`, account)
}

func (s *SQLiteStore) ListInvestments(ctx context.Context) ([]model.Investment, error) {
	return s.queryInvestments(ctx, `SELECT `+investmentColumns+` FROM investments ORDER BY id`)
}

func (s *SQLiteStore) queryInvestments(ctx context.Context, query string, args ...any) ([]model.Investment, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query investments: %w", err)
	}
	defer rows.Close()

	var out []model.Investment
	for rows.Next() {
		var inv model.Investment
		var start, end string
		if err := rows.Scan(&inv.ID, &inv.Account, &inv.ServiceUnits, &inv.CurrentSUs,
			&inv.WithdrawnSUs, &inv.RolloverSUs, &start, &end); err != nil {
			return nil, fmt.Errorf("scan investment: %w", err)
		}
		if inv.StartDate, err = model.ParseDate(start); err != nil {
			return nil, err
		}
		if inv.EndDate, err = model.ParseDate(end); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertInvestment(ctx context.Context, inv *model.Investment) error {
	res, err := s.q.ExecContext(ctx, `INSERT INTO investments
		(id, account, service_units, current_sus, withdrawn_sus, rollover_sus, start_date, end_date)
		VALUES (?,?,?,?,?,?,?,?)`,
		nullID(inv.ID), inv.Account, inv.ServiceUnits, inv.CurrentSUs, inv.WithdrawnSUs, inv.RolloverSUs,
		formatDate(inv.StartDate), formatDate(inv.EndDate),
	)
	if err != nil {
		return fmt.Errorf("insert investment for %s: %w", inv.Account, err)
	}
	return assignID(res, &inv.ID)
}

func (s *SQLiteStore) UpdateInvestment(ctx context.Context, inv *model.Investment) error {
	res, err := s.q.ExecContext(ctx, `UPDATE investments SET
		account = ?, service_units = ?, current_sus = ?, withdrawn_sus = ?, rollover_sus = ?, start_date = ?, end_date = ?
		WHERE id = ?`,
		inv.Account, inv.ServiceUnits, inv.CurrentSUs, inv.WithdrawnSUs, inv.RolloverSUs,
		formatDate(inv.StartDate), formatDate(inv.EndDate), inv.ID,
	)
	if err != nil {
		return fmt.Errorf("update investment %d: %w", inv.ID, err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteInvestment(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM investments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete investment %d: %w", id, err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) InsertInvestmentArchive(ctx context.Context, a *model.InvestmentArchive) error {
	res, err := s.q.ExecContext(ctx, `INSERT INTO investment_archives
		(investment_id, proposal_id, period_start, account, service_units, current_sus, withdrawn_sus, rollover_sus,
		 start_date, end_date, exhaustion_date)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.InvestmentID, a.ProposalID, formatDate(a.PeriodStart), a.Account, a.ServiceUnits, a.CurrentSUs, a.WithdrawnSUs, a.RolloverSUs,
		formatDate(a.StartDate), formatDate(a.EndDate), formatDate(a.ExhaustionDate),
	)
	if err != nil {
		return fmt.Errorf("insert investment archive %d: %w", a.InvestmentID, err)
	}
	return assignID(res, &a.ID)
}

func (s *SQLiteStore) FindInvestmentArchives(ctx context.Context, proposalID int64) ([]model.InvestmentArchive, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, investment_id, proposal_id, period_start, account, service_units,
		current_sus, withdrawn_sus, rollover_sus, start_date, end_date, exhaustion_date
		FROM investment_archives WHERE proposal_id = ? ORDER BY id`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("query investment archives: %w", err)
	}
	defer rows.Close()

	var out []model.InvestmentArchive
	for rows.Next() {
		var a model.InvestmentArchive
		var period, start, end, exhausted string
		if err := rows.Scan(&a.ID, &a.InvestmentID, &a.ProposalID, &period, &a.Account, &a.ServiceUnits,
			&a.CurrentSUs, &a.WithdrawnSUs, &a.RolloverSUs, &start, &end, &exhausted); err != nil {
			return nil, fmt.Errorf("scan investment archive: %w", err)
		}
		if err := parseDates([]string{period, start, end, exhausted}, &a.PeriodStart, &a.StartDate, &a.EndDate, &a.ExhaustionDate); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertProposalArchive(ctx context.Context, a *model.ProposalArchive) error {
	alloc, err := json.Marshal(a.Allocations)
	if err != nil {
		return fmt.Errorf("marshal allocations: %w", err)
	}
	usage, err := json.Marshal(a.Usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `INSERT INTO proposal_archives
		(proposal_id, account, proposal_type, start_date, end_date, allocations, usage, archived_on)
		VALUES (?,?,?,?,?,?,?,?)`,
		a.ProposalID, a.Account, int(a.Type), formatDate(a.StartDate), formatDate(a.EndDate),
		string(alloc), string(usage), formatDate(a.ArchivedOn),
	)
	if err != nil {
		return fmt.Errorf("insert proposal archive for %s: %w", a.Account, err)
	}
	return assignID(res, &a.ID)
}

func (s *SQLiteStore) FindProposalArchives(ctx context.Context, account string) ([]model.ProposalArchive, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, proposal_id, account, proposal_type, start_date, end_date,
		allocations, usage, archived_on
		FROM proposal_archives WHERE account = ? ORDER BY id`, account)
	if err != nil {
		return nil, fmt.Errorf("query proposal archives: %w", err)
	}
	defer rows.Close()

	var out []model.ProposalArchive
	for rows.Next() {
		var a model.ProposalArchive
		var typ int
		var start, end, archived, alloc, usage string
		if err := rows.Scan(&a.ID, &a.ProposalID, &a.Account, &typ, &start, &end, &alloc, &usage, &archived); err != nil {
			return nil, fmt.Errorf("scan proposal archive: %w", err)
		}
		a.Type = model.ProposalType(typ)
		if err := parseDates([]string{start, end, archived}, &a.StartDate, &a.EndDate, &a.ArchivedOn); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(alloc), &a.Allocations); err != nil {
			return nil, fmt.Errorf("decode allocations: %w", err)
		}
		if err := json.Unmarshal([]byte(usage), &a.Usage); err != nil {
			return nil, fmt.Errorf("decode usage: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*model.Proposal, error) {
	var p model.Proposal
	var typ, notified int
	var start, end, alloc string
	if err := row.Scan(&p.ID, &p.Account, &typ, &notified, &start, &end, &alloc); err != nil {
		return nil, err
	}
	p.Type = model.ProposalType(typ)
	p.PercentNotified = model.NotificationLevel(notified)
	if err := parseDates([]string{start, end}, &p.StartDate, &p.EndDate); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(alloc), &p.Allocations); err != nil {
		return nil, fmt.Errorf("decode allocations: %w", err)
	}
	return &p, nil
}

func parseDates(raw []string, dst ...*time.Time) error {
	for i, s := range raw {
		t, err := model.ParseDate(s)
		if err != nil {
			return err
		}
		*dst[i] = t
	}
	return nil
}

func formatDate(t time.Time) string { return model.Day(t).Format(model.DateLayout) }

// nullID lets SQLite assign the key unless the caller is restoring a dump.
func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func assignID(res sql.Result, id *int64) error {
	last, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	*id = last
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
