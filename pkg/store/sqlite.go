package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcclellann/saccoLoan/pkg/logger"
	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	logger.Info("Database connection established and schema initialized", "path", dataSourceName)
	return s, nil
}

// fromDB wraps an already-open handle without touching the schema.
func fromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		registration_date DATETIME NOT NULL,
		approval_date DATETIME
	);
	CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		fund TEXT NOT NULL,
		amount TEXT NOT NULL,
		date DATETIME NOT NULL,
		receipt_no TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(member_id) REFERENCES members(id)
	);
	CREATE TABLE IF NOT EXISTS loan_applications (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		purpose TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		date DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS approved_loans (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		purpose TEXT NOT NULL DEFAULT '',
		approval_date DATETIME NOT NULL,
		status TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		remaining_amount TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		amount TEXT NOT NULL,
		due_date DATETIME NOT NULL,
		status TEXT NOT NULL,
		remaining_amount TEXT,
		payment_date DATETIME,
		payment_method TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(loan_id) REFERENCES approved_loans(id)
	);
	CREATE TABLE IF NOT EXISTS installment_payments (
		installment_id TEXT NOT NULL,
		loan_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		amount TEXT NOT NULL,
		date DATETIME NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		PRIMARY KEY(installment_id, seq),
		FOREIGN KEY(installment_id) REFERENCES installments(id)
	);
	CREATE TABLE IF NOT EXISTS bonuses (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		period TEXT NOT NULL,
		amount TEXT NOT NULL,
		contribution_total TEXT NOT NULL,
		repayment_score TEXT NOT NULL,
		base_bonus TEXT NOT NULL,
		repayment_bonus TEXT NOT NULL,
		date DATETIME NOT NULL,
		status TEXT NOT NULL,
		approval_date DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_installments_loan ON installments(loan_id);
	CREATE INDEX IF NOT EXISTS idx_installments_member ON installments(member_id);
	CREATE INDEX IF NOT EXISTS idx_contributions_member ON contributions(member_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// countingTx tallies the rows touched by every statement run through it.
type countingTx struct {
	*sql.Tx
	rowsAffected int64
}

func (c *countingTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := c.Tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err == nil {
		c.rowsAffected += n
	}
	return result, nil
}

// withTx runs fn inside a transaction, rolling back on any error.
func (s *SQLiteStore) withTx(ctx context.Context, operation string, fn func(tx *countingTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &countingTx{Tx: sqlTx}
	if err := fn(tx); err != nil {
		logger.DatabaseResult(operation, tx.rowsAffected, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		logger.DatabaseResult(operation, tx.rowsAffected, err)
		return fmt.Errorf("failed to commit %s: %w", operation, err)
	}
	logger.DatabaseResult(operation, tx.rowsAffected, nil)
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func checkAffected(result sql.Result, kind, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound(kind, id)
	}
	return nil
}

// Members

const memberColumns = `id, full_name, email, phone, status, registration_date, approval_date`

func (s *SQLiteStore) CreateMember(ctx context.Context, m *models.Member) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.FullName, m.Email, m.Phone, m.Status, m.RegistrationDate, m.ApprovalDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMember(ctx context.Context, id string) (*models.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("member", id)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) UpdateMember(ctx context.Context, m *models.Member) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE members SET full_name = ?, email = ?, phone = ?, status = ?, approval_date = ? WHERE id = ?`,
		m.FullName, m.Email, m.Phone, m.Status, m.ApprovalDate, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return checkAffected(result, "member", m.ID)
}

func (s *SQLiteStore) ListMembersByStatus(ctx context.Context, status models.MemberStatus) ([]*models.Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memberColumns+` FROM members WHERE status = ? ORDER BY registration_date ASC, id ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return members, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (*models.Member, error) {
	var m models.Member
	var approval sql.NullTime
	if err := row.Scan(&m.ID, &m.FullName, &m.Email, &m.Phone, &m.Status, &m.RegistrationDate, &approval); err != nil {
		return nil, err
	}
	if approval.Valid {
		m.ApprovalDate = &approval.Time
	}
	return &m, nil
}

// Contributions

func (s *SQLiteStore) CreateContribution(ctx context.Context, c *models.Contribution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contributions (id, member_id, fund, amount, date, receipt_no) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.MemberID, c.Fund, c.Amount, c.Date, c.ReceiptNo,
	)
	if err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

// SumContributionsByMember adds amounts in Go; SQLite's SUM over TEXT would go through float.
func (s *SQLiteStore) SumContributionsByMember(ctx context.Context, memberID string) (decimal.Decimal, error) {
	total, err := s.sumContributions(ctx, `WHERE member_id = ?`, memberID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum contributions for member %s: %w", memberID, err)
	}
	return total, nil
}

// SumContributions totals every contribution on record.
func (s *SQLiteStore) SumContributions(ctx context.Context) (decimal.Decimal, error) {
	total, err := s.sumContributions(ctx, ``)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum contributions: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) sumContributions(ctx context.Context, where string, args ...any) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT amount FROM contributions `+where, args...)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan contribution amount: %w", err)
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error during rows iteration: %w", err)
	}
	return total, nil
}

// Loan applications

const applicationColumns = `id, member_id, amount, purpose, status, date`

func (s *SQLiteStore) CreateApplication(ctx context.Context, app *models.LoanApplication) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loan_applications (`+applicationColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		app.ID, app.MemberID, app.Amount, app.Purpose, app.Status, app.Date,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan application: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (*models.LoanApplication, error) {
	var app models.LoanApplication
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM loan_applications WHERE id = ?`, id)
	err := row.Scan(&app.ID, &app.MemberID, &app.Amount, &app.Purpose, &app.Status, &app.Date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("loan application", id)
		}
		return nil, fmt.Errorf("failed to get loan application: %w", err)
	}
	return &app, nil
}

func (s *SQLiteStore) UpdateApplication(ctx context.Context, app *models.LoanApplication) error {
	return updateApplication(ctx, s.db, app)
}

func updateApplication(ctx context.Context, q querier, app *models.LoanApplication) error {
	result, err := q.ExecContext(ctx,
		`UPDATE loan_applications SET member_id = ?, amount = ?, purpose = ?, status = ? WHERE id = ?`,
		app.MemberID, app.Amount, app.Purpose, app.Status, app.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan application: %w", err)
	}
	return checkAffected(result, "loan application", app.ID)
}

func (s *SQLiteStore) ListApplications(ctx context.Context) ([]*models.LoanApplication, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM loan_applications ORDER BY date ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list loan applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.LoanApplication
	for rows.Next() {
		var app models.LoanApplication
		if err := rows.Scan(&app.ID, &app.MemberID, &app.Amount, &app.Purpose, &app.Status, &app.Date); err != nil {
			return nil, fmt.Errorf("failed to scan loan application row: %w", err)
		}
		apps = append(apps, &app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return apps, nil
}

// Approved loans

const loanColumns = `id, member_id, amount, purpose, approval_date, status, paid_amount, remaining_amount, updated_at`

func (s *SQLiteStore) ApproveApplication(ctx context.Context, app *models.LoanApplication, loan *models.ApprovedLoan, schedule []*models.RepaymentInstallment) error {
	return s.withTx(ctx, "approve_application", func(tx *countingTx) error {
		if err := updateApplication(ctx, tx, app); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO approved_loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			loan.ID, loan.MemberID, loan.Amount, loan.Purpose, loan.ApprovalDate, loan.Status, loan.PaidAmount, loan.RemainingAmount, loan.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create approved loan: %w", err)
		}
		return replaceSchedule(ctx, tx, loan.ID, schedule)
	})
}

func (s *SQLiteStore) GetLoan(ctx context.Context, id string) (*models.ApprovedLoan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM approved_loans WHERE id = ?`, id)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("loan", id)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

func (s *SQLiteStore) UpdateLoan(ctx context.Context, loan *models.ApprovedLoan) error {
	return updateLoan(ctx, s.db, loan)
}

func updateLoan(ctx context.Context, q querier, loan *models.ApprovedLoan) error {
	result, err := q.ExecContext(ctx,
		`UPDATE approved_loans SET status = ?, paid_amount = ?, remaining_amount = ?, updated_at = ? WHERE id = ?`,
		loan.Status, loan.PaidAmount, loan.RemainingAmount, loan.UpdatedAt, loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return checkAffected(result, "loan", loan.ID)
}

func (s *SQLiteStore) ListLoans(ctx context.Context) ([]*models.ApprovedLoan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM approved_loans ORDER BY approval_date ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.ApprovedLoan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func scanLoan(row scanner) (*models.ApprovedLoan, error) {
	var loan models.ApprovedLoan
	err := row.Scan(&loan.ID, &loan.MemberID, &loan.Amount, &loan.Purpose, &loan.ApprovalDate, &loan.Status, &loan.PaidAmount, &loan.RemainingAmount, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// Installments

const installmentColumns = `id, loan_id, member_id, month, amount, due_date, status, remaining_amount, payment_date, payment_method, reference`

func (s *SQLiteStore) ReplaceSchedule(ctx context.Context, loanID string, schedule []*models.RepaymentInstallment) error {
	return s.withTx(ctx, "replace_schedule", func(tx *countingTx) error {
		return replaceSchedule(ctx, tx, loanID, schedule)
	})
}

func replaceSchedule(ctx context.Context, q querier, loanID string, schedule []*models.RepaymentInstallment) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM installment_payments WHERE loan_id = ?`, loanID); err != nil {
		return fmt.Errorf("failed to purge payments for loan %s: %w", loanID, err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM installments WHERE loan_id = ?`, loanID); err != nil {
		return fmt.Errorf("failed to purge installments for loan %s: %w", loanID, err)
	}
	for _, inst := range schedule {
		_, err := q.ExecContext(ctx,
			`INSERT INTO installments (`+installmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, inst.LoanID, inst.MemberID, inst.Month, inst.Amount, inst.DueDate, inst.Status, inst.RemainingAmount, inst.PaymentDate, inst.PaymentMethod, inst.Reference,
		)
		if err != nil {
			return fmt.Errorf("failed to insert installment %s: %w", inst.ID, err)
		}
		if err := writePayments(ctx, q, inst); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetInstallment(ctx context.Context, id string) (*models.RepaymentInstallment, error) {
	insts, err := s.queryInstallments(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(insts) == 0 {
		return nil, notFound("installment", id)
	}
	return insts[0], nil
}

func (s *SQLiteStore) ListInstallmentsForLoan(ctx context.Context, loanID string) ([]*models.RepaymentInstallment, error) {
	return s.queryInstallments(ctx, `WHERE loan_id = ?`, loanID)
}

func (s *SQLiteStore) ListInstallments(ctx context.Context) ([]*models.RepaymentInstallment, error) {
	return s.queryInstallments(ctx, ``)
}

func (s *SQLiteStore) SavePayment(ctx context.Context, loan *models.ApprovedLoan, installments []*models.RepaymentInstallment) error {
	return s.withTx(ctx, "save_payment", func(tx *countingTx) error {
		for _, inst := range installments {
			result, err := tx.ExecContext(ctx,
				`UPDATE installments SET status = ?, remaining_amount = ?, payment_date = ?, payment_method = ?, reference = ? WHERE id = ?`,
				inst.Status, inst.RemainingAmount, inst.PaymentDate, inst.PaymentMethod, inst.Reference, inst.ID,
			)
			if err != nil {
				return fmt.Errorf("failed to update installment %s: %w", inst.ID, err)
			}
			if err := checkAffected(result, "installment", inst.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM installment_payments WHERE installment_id = ?`, inst.ID); err != nil {
				return fmt.Errorf("failed to reset payments for installment %s: %w", inst.ID, err)
			}
			if err := writePayments(ctx, tx, inst); err != nil {
				return err
			}
		}
		return updateLoan(ctx, tx, loan)
	})
}

func writePayments(ctx context.Context, q querier, inst *models.RepaymentInstallment) error {
	for i, p := range inst.Payments {
		_, err := q.ExecContext(ctx,
			`INSERT INTO installment_payments (installment_id, loan_id, seq, amount, date, method, reference, note) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, inst.LoanID, i, p.Amount, p.Date, p.Method, p.Reference, p.Note,
		)
		if err != nil {
			return fmt.Errorf("failed to insert payment for installment %s: %w", inst.ID, err)
		}
	}
	return nil
}

// queryInstallments loads installments in schedule order and attaches their payment history.
func (s *SQLiteStore) queryInstallments(ctx context.Context, where string, args ...any) ([]*models.RepaymentInstallment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+installmentColumns+` FROM installments `+where+` ORDER BY loan_id ASC, due_date ASC, month ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()

	var insts []*models.RepaymentInstallment
	byID := make(map[string]*models.RepaymentInstallment)
	for rows.Next() {
		var inst models.RepaymentInstallment
		var paymentDate sql.NullTime
		err := rows.Scan(&inst.ID, &inst.LoanID, &inst.MemberID, &inst.Month, &inst.Amount, &inst.DueDate, &inst.Status, &inst.RemainingAmount, &paymentDate, &inst.PaymentMethod, &inst.Reference)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		if paymentDate.Valid {
			inst.PaymentDate = &paymentDate.Time
		}
		inst.Payments = []models.Payment{}
		insts = append(insts, &inst)
		byID[inst.ID] = &inst
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	if len(insts) == 0 {
		return insts, nil
	}

	if err := s.attachPayments(ctx, byID, where, args...); err != nil {
		return nil, err
	}
	return insts, nil
}

// attachPayments loads the payment history of every installment matched by where.
// The filter is applied as a subquery so the number of bound variables stays fixed.
func (s *SQLiteStore) attachPayments(ctx context.Context, byID map[string]*models.RepaymentInstallment, where string, args ...any) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT installment_id, amount, date, method, reference, note FROM installment_payments WHERE installment_id IN (SELECT id FROM installments `+where+`) ORDER BY installment_id ASC, seq ASC`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to query installment payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var instID string
		var p models.Payment
		if err := rows.Scan(&instID, &p.Amount, &p.Date, &p.Method, &p.Reference, &p.Note); err != nil {
			return fmt.Errorf("failed to scan payment row: %w", err)
		}
		if inst, ok := byID[instID]; ok {
			inst.Payments = append(inst.Payments, p)
		}
	}
	return rows.Err()
}

// Bonuses

const bonusColumns = `id, member_id, period, amount, contribution_total, repayment_score, base_bonus, repayment_bonus, date, status, approval_date`

func (s *SQLiteStore) ReplaceCalculatedBonuses(ctx context.Context, bonuses []*models.Bonus) error {
	return s.withTx(ctx, "replace_bonuses", func(tx *countingTx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM bonuses WHERE status = ?`, models.BonusStatusCalculated); err != nil {
			return fmt.Errorf("failed to clear calculated bonuses: %w", err)
		}
		for _, b := range bonuses {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO bonuses (`+bonusColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				b.ID, b.MemberID, b.Period, b.Amount, b.ContributionTotal, b.RepaymentScore, b.Details.BaseBonus, b.Details.RepaymentBonus, b.Date, b.Status, b.ApprovalDate,
			)
			if err != nil {
				return fmt.Errorf("failed to insert bonus %s: %w", b.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetBonus(ctx context.Context, id string) (*models.Bonus, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bonusColumns+` FROM bonuses WHERE id = ?`, id)
	b, err := scanBonus(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("bonus", id)
		}
		return nil, fmt.Errorf("failed to get bonus: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) UpdateBonus(ctx context.Context, b *models.Bonus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE bonuses SET status = ?, approval_date = ? WHERE id = ?`,
		b.Status, b.ApprovalDate, b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bonus: %w", err)
	}
	return checkAffected(result, "bonus", b.ID)
}

func (s *SQLiteStore) ListBonuses(ctx context.Context) ([]*models.Bonus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bonusColumns+` FROM bonuses ORDER BY period ASC, member_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bonuses: %w", err)
	}
	defer rows.Close()

	var bonuses []*models.Bonus
	for rows.Next() {
		b, err := scanBonus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bonus row: %w", err)
		}
		bonuses = append(bonuses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return bonuses, nil
}

func scanBonus(row scanner) (*models.Bonus, error) {
	var b models.Bonus
	var approval sql.NullTime
	err := row.Scan(&b.ID, &b.MemberID, &b.Period, &b.Amount, &b.ContributionTotal, &b.RepaymentScore, &b.Details.BaseBonus, &b.Details.RepaymentBonus, &b.Date, &b.Status, &approval)
	if err != nil {
		return nil, err
	}
	if approval.Valid {
		b.ApprovalDate = &approval.Time
	}
	b.Details.TotalContributions = b.ContributionTotal
	b.Details.RepaymentScore = b.RepaymentScore
	return &b, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
