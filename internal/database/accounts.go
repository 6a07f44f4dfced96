package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tallyhq/tally/internal/config"
)

// SignupBonus is the token balance granted on first registration and
// added again on every repeat sign-in.
const SignupBonus = 5

// ErrNoAccount is returned when an operation targets an email with no
// ledger row.
var ErrNoAccount = errors.New("account not found")

// Account is one row of the user ledger, serialized verbatim by the
// listing endpoint.
type Account struct {
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	GoogleImageURL string    `json:"google_image_url"`
	TokenRemaining int64     `json:"token_remaining"`
	SignupDate     time.Time `json:"signup_date"`
}

// RegisterOrTopUp creates the account with the signup bonus or adds the
// bonus to an existing balance. A single upsert statement keeps two
// concurrent sign-ins for the same email from losing an increment.
func (db *DB) RegisterOrTopUp(name, email, imageURL string) error {
	var stmt string
	switch db.driver {
	case config.DriverMySQL:
		stmt = `
			INSERT INTO users (name, email, google_image_url, token_remaining, signup_date)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				token_remaining = token_remaining + VALUES(token_remaining),
				name = VALUES(name),
				google_image_url = VALUES(google_image_url)
		`
	default:
		stmt = `
			INSERT INTO users (name, email, google_image_url, token_remaining, signup_date)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(email) DO UPDATE SET
				token_remaining = token_remaining + excluded.token_remaining,
				name = excluded.name,
				google_image_url = excluded.google_image_url
		`
	}

	_, err := db.Exec(stmt, name, email, imageURL, SignupBonus, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to register account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by email. Returns nil when no row
// matches.
func (db *DB) GetAccount(email string) (*Account, error) {
	account := &Account{}
	var name, imageURL sql.NullString
	err := db.QueryRow(`
		SELECT name, email, google_image_url, token_remaining, signup_date
		FROM users WHERE email = ?
	`, email).Scan(&name, &account.Email, &imageURL, &account.TokenRemaining, &account.SignupDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	account.Name = name.String
	account.GoogleImageURL = imageURL.String
	return account, nil
}

// ListAccounts returns every account row, oldest signup first.
func (db *DB) ListAccounts() ([]*Account, error) {
	rows, err := db.Query(`
		SELECT name, email, google_image_url, token_remaining, signup_date
		FROM users
		ORDER BY signup_date
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a := &Account{}
		var name, imageURL sql.NullString
		if err := rows.Scan(&name, &a.Email, &imageURL, &a.TokenRemaining, &a.SignupDate); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Name = name.String
		a.GoogleImageURL = imageURL.String
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DebitToken subtracts one token from the account. The ledger records
// consumption, it does not gate it: balances may go negative.
func (db *DB) DebitToken(email string) error {
	result, err := db.Exec(`
		UPDATE users SET token_remaining = token_remaining - 1 WHERE email = ?
	`, email)
	if err != nil {
		return fmt.Errorf("failed to debit token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoAccount
	}
	return nil
}

// GrantTokens adds amount tokens to an existing account. Unknown emails
// return ErrNoAccount; grants never create accounts.
func (db *DB) GrantTokens(email string, amount int64) error {
	result, err := db.Exec(`
		UPDATE users SET token_remaining = token_remaining + ? WHERE email = ?
	`, amount, email)
	if err != nil {
		return fmt.Errorf("failed to grant tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoAccount
	}
	return nil
}

// RecordGrant writes an audit row for an applied grant.
func (db *DB) RecordGrant(id, source, email string, amount int64) error {
	_, err := db.Exec(`
		INSERT INTO token_grants (id, source, email, amount, applied_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, source, email, amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record grant: %w", err)
	}
	return nil
}

// CountAccounts returns the number of ledger rows.
func (db *DB) CountAccounts() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}
