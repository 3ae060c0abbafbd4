package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/provtax/backend/internal/model"
)

// PostgresStore implements Store on postgres via database/sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects, verifies the connection, and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			number TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS statements (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			filename TEXT NOT NULL,
			uploaded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			default_vat_rate_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			statement_id TEXT,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			date DATE NOT NULL,
			description TEXT NOT NULL,
			amount NUMERIC(14,2) NOT NULL,
			category_id TEXT REFERENCES categories(id),
			vat_rate_type TEXT NOT NULL DEFAULT '',
			vat_amount NUMERIC(14,2),
			amount_incl_vat BOOLEAN NOT NULL DEFAULT TRUE,
			vat_claimable BOOLEAN NOT NULL DEFAULT FALSE,
			is_manual BOOLEAN NOT NULL DEFAULT FALSE,
			is_duplicate BOOLEAN NOT NULL DEFAULT FALSE,
			duplicate_of_id TEXT,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			needs_split BOOLEAN NOT NULL DEFAULT FALSE,
			parent_id TEXT,
			original_amount NUMERIC(14,2),
			notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions (account_id, date)`,
		`CREATE TABLE IF NOT EXISTS expense_rules (
			id TEXT PRIMARY KEY,
			pattern TEXT NOT NULL,
			is_regex BOOLEAN NOT NULL DEFAULT FALSE,
			category_id TEXT NOT NULL REFERENCES categories(id),
			priority INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS vat_rate_configs (
			id TEXT PRIMARY KEY,
			effective_from DATE NOT NULL,
			effective_to DATE,
			standard_rate NUMERIC(6,4) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS tax_years (
			year INT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			start_date DATE NOT NULL,
			end_date DATE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tax_brackets (
			year INT NOT NULL REFERENCES tax_years(year) ON DELETE CASCADE,
			bracket_order INT NOT NULL,
			min_income NUMERIC(14,2) NOT NULL,
			max_income NUMERIC(14,2),
			rate NUMERIC(6,4) NOT NULL,
			base_tax NUMERIC(14,2) NOT NULL,
			PRIMARY KEY (year, bracket_order)
		)`,
		`CREATE TABLE IF NOT EXISTS tax_rebates (
			year INT NOT NULL REFERENCES tax_years(year) ON DELETE CASCADE,
			type TEXT NOT NULL,
			min_age INT NOT NULL,
			amount NUMERIC(14,2) NOT NULL,
			PRIMARY KEY (year, type)
		)`,
		`CREATE TABLE IF NOT EXISTS medical_credits (
			year INT NOT NULL REFERENCES tax_years(year) ON DELETE CASCADE,
			type TEXT NOT NULL,
			monthly_amount NUMERIC(14,2) NOT NULL,
			PRIMARY KEY (year, type)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, type, number) VALUES ($1, $2, $3, $4)`,
		account.ID, account.Name, string(account.Type), account.Number)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, name, type, number FROM accounts WHERE id = $1`, id), id)
}

func (s *PostgresStore) GetAccountByNumber(ctx context.Context, number string) (*model.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, name, type, number FROM accounts WHERE number = $1`, number), number)
}

func (s *PostgresStore) scanAccount(row *sql.Row, key string) (*model.Account, error) {
	var a model.Account
	var typ string
	if err := row.Scan(&a.ID, &a.Name, &typ, &a.Number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	a.Type = model.AccountType(typ)
	return &a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, number FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		var a model.Account
		var typ string
		if err := rows.Scan(&a.ID, &a.Name, &typ, &a.Number); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Type = model.AccountType(typ)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateStatement(ctx context.Context, statement *model.Statement) error {
	if statement.ID == "" {
		statement.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO statements (id, account_id, start_date, end_date, filename, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		statement.ID, statement.AccountID, statement.StartDate, statement.EndDate,
		statement.Filename, statement.UploadedAt)
	if err != nil {
		return fmt.Errorf("create statement: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStatements(ctx context.Context, accountID string) ([]*model.Statement, error) {
	q := `SELECT id, account_id, start_date, end_date, filename, uploaded_at FROM statements`
	args := []any{}
	if accountID != "" {
		q += ` WHERE account_id = $1`
		args = append(args, accountID)
	}
	q += ` ORDER BY start_date`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	var out []*model.Statement
	for rows.Next() {
		var st model.Statement
		if err := rows.Scan(&st.ID, &st.AccountID, &st.StartDate, &st.EndDate, &st.Filename, &st.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

const transactionColumns = `id, statement_id, account_id, date, description, amount,
	category_id, vat_rate_type, vat_amount, amount_incl_vat, vat_claimable,
	is_manual, is_duplicate, duplicate_of_id, is_deleted, needs_split,
	parent_id, original_amount, notes`

func (s *PostgresStore) CreateTransactions(ctx context.Context, txs []*model.Transaction) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		_, err := stmt.ExecContext(ctx,
			tx.ID, nullString(tx.StatementID), tx.AccountID, tx.Date, tx.Description, tx.Amount,
			tx.CategoryID, string(tx.VATRateType), tx.VATAmount, tx.AmountInclVAT, tx.VATClaimable,
			tx.IsManual, tx.IsDuplicate, tx.DuplicateOfID, tx.IsDeleted, tx.NeedsSplit,
			tx.ParentID, tx.OriginalAmount, tx.Notes)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
		}
	}
	return dbTx.Commit()
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET
			date = $2, description = $3, amount = $4, category_id = $5,
			vat_rate_type = $6, vat_amount = $7, amount_incl_vat = $8, vat_claimable = $9,
			is_manual = $10, is_duplicate = $11, duplicate_of_id = $12, is_deleted = $13,
			needs_split = $14, parent_id = $15, original_amount = $16, notes = $17
		 WHERE id = $1`,
		tx.ID, tx.Date, tx.Description, tx.Amount, tx.CategoryID,
		string(tx.VATRateType), tx.VATAmount, tx.AmountInclVAT, tx.VATClaimable,
		tx.IsManual, tx.IsDuplicate, tx.DuplicateOfID, tx.IsDeleted,
		tx.NeedsSplit, tx.ParentID, tx.OriginalAmount, tx.Notes)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*model.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.IncludeInactive {
		q += ` AND NOT is_duplicate AND NOT is_deleted`
	}
	if filter.AccountID != "" {
		q += ` AND account_id = ` + arg(filter.AccountID)
	}
	if filter.CategoryID != "" {
		q += ` AND category_id = ` + arg(filter.CategoryID)
	}
	if filter.Uncategorized {
		q += ` AND category_id IS NULL`
	}
	if filter.NeedsSplit {
		q += ` AND needs_split`
	}
	if filter.From != nil {
		q += ` AND date >= ` + arg(*filter.From)
	}
	if filter.To != nil {
		q += ` AND date <= ` + arg(*filter.To)
	}
	q += ` ORDER BY date, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(scan func(...any) error) (*model.Transaction, error) {
	var tx model.Transaction
	var statementID sql.NullString
	var rateType string
	err := scan(
		&tx.ID, &statementID, &tx.AccountID, &tx.Date, &tx.Description, &tx.Amount,
		&tx.CategoryID, &rateType, &tx.VATAmount, &tx.AmountInclVAT, &tx.VATClaimable,
		&tx.IsManual, &tx.IsDuplicate, &tx.DuplicateOfID, &tx.IsDeleted, &tx.NeedsSplit,
		&tx.ParentID, &tx.OriginalAmount, &tx.Notes)
	if err != nil {
		return nil, err
	}
	tx.StatementID = statementID.String
	tx.VATRateType = model.VATRateType(rateType)
	return &tx, nil
}

func (s *PostgresStore) CreateCategory(ctx context.Context, category *model.Category) error {
	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, type, default_vat_rate_type, description)
		 VALUES ($1, $2, $3, $4, $5)`,
		category.ID, category.Name, string(category.Type),
		string(category.DefaultVATRateType), category.Description)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	var c model.Category
	var typ, vat string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, default_vat_rate_type, description FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &typ, &vat, &c.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	c.Type = model.CategoryType(typ)
	c.DefaultVATRateType = model.VATRateType(vat)
	return &c, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]*model.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, default_vat_rate_type, description FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []*model.Category
	for rows.Next() {
		var c model.Category
		var typ, vat string
		if err := rows.Scan(&c.ID, &c.Name, &typ, &vat, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = model.CategoryType(typ)
		c.DefaultVATRateType = model.VATRateType(vat)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateRule(ctx context.Context, rule *model.ExpenseRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expense_rules (id, pattern, is_regex, category_id, priority, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rule.ID, rule.Pattern, rule.IsRegex, rule.CategoryID, rule.Priority, rule.IsActive)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRule(ctx context.Context, rule *model.ExpenseRule) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE expense_rules SET pattern = $2, is_regex = $3, category_id = $4,
			priority = $5, is_active = $6 WHERE id = $1`,
		rule.ID, rule.Pattern, rule.IsRegex, rule.CategoryID, rule.Priority, rule.IsActive)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListRules(ctx context.Context) ([]*model.ExpenseRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pattern, is_regex, category_id, priority, is_active FROM expense_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*model.ExpenseRule
	for rows.Next() {
		var r model.ExpenseRule
		if err := rows.Scan(&r.ID, &r.Pattern, &r.IsRegex, &r.CategoryID, &r.Priority, &r.IsActive); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateVATRate(ctx context.Context, config *model.VATRateConfig) error {
	if config.ID == "" {
		config.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vat_rate_configs (id, effective_from, effective_to, standard_rate, is_active, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		config.ID, config.EffectiveFrom, config.EffectiveTo, config.StandardRate, config.IsActive, config.Notes)
	if err != nil {
		return fmt.Errorf("create vat rate: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListVATRates(ctx context.Context) ([]*model.VATRateConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, effective_from, effective_to, standard_rate, is_active, notes
		 FROM vat_rate_configs ORDER BY effective_from`)
	if err != nil {
		return nil, fmt.Errorf("list vat rates: %w", err)
	}
	defer rows.Close()

	var out []*model.VATRateConfig
	for rows.Next() {
		var v model.VATRateConfig
		var to sql.NullTime
		if err := rows.Scan(&v.ID, &v.EffectiveFrom, &to, &v.StandardRate, &v.IsActive, &v.Notes); err != nil {
			return nil, fmt.Errorf("scan vat rate: %w", err)
		}
		if to.Valid {
			t := to.Time
			v.EffectiveTo = &t
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateTaxYear(ctx context.Context, year *model.TaxYear) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO tax_years (year, description, start_date, end_date) VALUES ($1, $2, $3, $4)`,
		year.Year, year.Description, year.StartDate, year.EndDate)
	if err != nil {
		return fmt.Errorf("create tax year: %w", err)
	}
	for _, b := range year.Brackets {
		_, err = dbTx.ExecContext(ctx,
			`INSERT INTO tax_brackets (year, bracket_order, min_income, max_income, rate, base_tax)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			year.Year, b.Order, b.MinIncome, b.MaxIncome, b.Rate, b.BaseTax)
		if err != nil {
			return fmt.Errorf("create bracket: %w", err)
		}
	}
	for _, r := range year.Rebates {
		_, err = dbTx.ExecContext(ctx,
			`INSERT INTO tax_rebates (year, type, min_age, amount) VALUES ($1, $2, $3, $4)`,
			year.Year, r.Type, r.MinAge, r.Amount)
		if err != nil {
			return fmt.Errorf("create rebate: %w", err)
		}
	}
	for _, m := range year.MedicalCredits {
		_, err = dbTx.ExecContext(ctx,
			`INSERT INTO medical_credits (year, type, monthly_amount) VALUES ($1, $2, $3)`,
			year.Year, m.Type, m.MonthlyAmount)
		if err != nil {
			return fmt.Errorf("create medical credit: %w", err)
		}
	}
	return dbTx.Commit()
}

func (s *PostgresStore) GetTaxYear(ctx context.Context, year int) (*model.TaxYear, error) {
	var y model.TaxYear
	err := s.db.QueryRowContext(ctx,
		`SELECT year, description, start_date, end_date FROM tax_years WHERE year = $1`, year).
		Scan(&y.Year, &y.Description, &y.StartDate, &y.EndDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tax year %d: %w", year, ErrNotFound)
		}
		return nil, fmt.Errorf("get tax year: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT bracket_order, min_income, max_income, rate, base_tax
		 FROM tax_brackets WHERE year = $1 ORDER BY bracket_order`, year)
	if err != nil {
		return nil, fmt.Errorf("list brackets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b model.TaxBracket
		if err := rows.Scan(&b.Order, &b.MinIncome, &b.MaxIncome, &b.Rate, &b.BaseTax); err != nil {
			return nil, fmt.Errorf("scan bracket: %w", err)
		}
		y.Brackets = append(y.Brackets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rrows, err := s.db.QueryContext(ctx,
		`SELECT type, min_age, amount FROM tax_rebates WHERE year = $1 ORDER BY min_age`, year)
	if err != nil {
		return nil, fmt.Errorf("list rebates: %w", err)
	}
	defer rrows.Close()
	for rrows.Next() {
		var r model.TaxRebate
		if err := rrows.Scan(&r.Type, &r.MinAge, &r.Amount); err != nil {
			return nil, fmt.Errorf("scan rebate: %w", err)
		}
		y.Rebates = append(y.Rebates, r)
	}
	if err := rrows.Err(); err != nil {
		return nil, err
	}

	mrows, err := s.db.QueryContext(ctx,
		`SELECT type, monthly_amount FROM medical_credits WHERE year = $1 ORDER BY type`, year)
	if err != nil {
		return nil, fmt.Errorf("list medical credits: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m model.MedicalAidCredit
		if err := mrows.Scan(&m.Type, &m.MonthlyAmount); err != nil {
			return nil, fmt.Errorf("scan medical credit: %w", err)
		}
		y.MedicalCredits = append(y.MedicalCredits, m)
	}
	return &y, mrows.Err()
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
