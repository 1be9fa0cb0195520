// internal/ledger/store.go
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"media-reconciler/internal/common/logger"
	"media-reconciler/internal/models"
	"media-reconciler/internal/normalize"
)

const selectColumns = "id, primaryEmail, secondaryEmail, primaryDiscord, secondaryDiscord, " +
	"primaryDiscordId, secondaryDiscordId, notifyEmail, notifyDiscord, status, server, " +
	"`4k`, joinDate, startDate, endDate"

// Columns readable through Field. Guards against arbitrary identifiers
// reaching the query text.
var readableFields = map[string]bool{
	"primaryEmail":       true,
	"secondaryEmail":     true,
	"primaryDiscordId":   true,
	"secondaryDiscordId": true,
	"notifyEmail":        true,
	"notifyDiscord":      true,
	"status":             true,
	"endDate":            true,
}

// Store is the single gateway to the subscription ledger. Reads return
// normalized records; the only write is SetStatus.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

// UsersByStatus returns all records matching the status for one server.
// A connectivity or scan failure surfaces as an error; zero matching rows
// is a valid empty result, not a failure.
func (s *Store) UsersByStatus(ctx context.Context, status models.Status, serverKey string) ([]models.SubscriptionRecord, error) {
	if !models.IsValidStatus(status) {
		return nil, fmt.Errorf("invalid ledger status %q", status)
	}

	query := "SELECT " + selectColumns + " FROM users WHERE status = ? AND LOWER(server) = ?"
	rows, err := s.db.QueryContext(ctx, query, string(status), normalize.ServerKey(serverKey))
	if err != nil {
		return nil, fmt.Errorf("query users by status: %w", err)
	}
	defer rows.Close()

	var records []models.SubscriptionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return records, nil
}

// UserExists reports whether a record exists for the email on the server.
func (s *Store) UserExists(ctx context.Context, email, serverKey string) (bool, error) {
	normEmail, ok := normalize.Email(email)
	if !ok {
		return false, nil
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM users WHERE LOWER(primaryEmail) = ? AND LOWER(server) = ? LIMIT 1",
		normEmail, normalize.ServerKey(serverKey),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user existence: %w", err)
	}
	return true, nil
}

// Field reads one whitelisted column for a subscriber. Returns "" without
// error when the row or value is absent.
func (s *Store) Field(ctx context.Context, serverKey, email, column string) (string, error) {
	if !readableFields[column] {
		return "", fmt.Errorf("field %q is not readable", column)
	}
	normEmail, ok := normalize.Email(email)
	if !ok {
		return "", nil
	}

	var value sql.NullString
	query := fmt.Sprintf("SELECT %s FROM users WHERE LOWER(primaryEmail) = ? AND LOWER(server) = ? LIMIT 1", column)
	err := s.db.QueryRowContext(ctx, query, normEmail, normalize.ServerKey(serverKey)).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read field %s: %w", column, err)
	}
	return value.String, nil
}

// SetStatus is the ledger's only write. Rejects statuses outside
// Active/Inactive. Returns whether a row actually changed; updating a row
// already at the target status affects nothing and is success.
func (s *Store) SetStatus(ctx context.Context, serverKey, email string, status models.Status) (bool, error) {
	if !models.IsValidStatus(status) {
		return false, fmt.Errorf("invalid ledger status %q", status)
	}
	normEmail, ok := normalize.Email(email)
	if !ok {
		return false, fmt.Errorf("cannot set status for empty email")
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET status = ? WHERE LOWER(primaryEmail) = ? AND LOWER(server) = ?",
		string(status), normEmail, normalize.ServerKey(serverKey),
	)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		s.logger.Debug("status update touched no rows", map[string]interface{}{
			"email":  normEmail,
			"server": serverKey,
			"status": string(status),
		})
		return false, nil
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (models.SubscriptionRecord, error) {
	var (
		rec models.SubscriptionRecord

		secondaryEmail, primaryDiscord, secondaryDiscord sql.NullString
		primaryDiscordID, secondaryDiscordID             sql.NullString
		notifyEmail, notifyDiscord, fourK                sql.NullString
		status, server, primaryEmail                     sql.NullString
		joinDate, startDate, endDate                     sql.NullTime
	)

	err := row.Scan(
		&rec.ID, &primaryEmail, &secondaryEmail, &primaryDiscord, &secondaryDiscord,
		&primaryDiscordID, &secondaryDiscordID, &notifyEmail, &notifyDiscord,
		&status, &server, &fourK, &joinDate, &startDate, &endDate,
	)
	if err != nil {
		return rec, err
	}

	if email, ok := normalize.Email(primaryEmail.String); ok {
		rec.PrimaryEmail = email
	}
	// Historical imports used "n/a" as the secondary-contact placeholder.
	if email, ok := normalize.Email(secondaryEmail.String); ok && email != "n/a" {
		rec.SecondaryEmail = email
	}
	rec.PrimaryDiscord = normalize.ID(primaryDiscord.String)
	rec.SecondaryDiscord = normalize.ID(secondaryDiscord.String)
	rec.PrimaryDiscordID = normalize.ID(primaryDiscordID.String)
	rec.SecondaryDiscordID = normalize.ID(secondaryDiscordID.String)
	if rec.SecondaryDiscordID == "n/a" {
		rec.SecondaryDiscordID = ""
	}
	rec.NotifyEmail = models.ParseNotifyPref(notifyEmail.String)
	rec.NotifyDiscord = models.ParseNotifyPref(notifyDiscord.String)
	rec.Status = models.Status(status.String)
	rec.Server = normalize.ServerKey(server.String)
	rec.FourK = equalsYes(fourK.String)
	if joinDate.Valid {
		t := joinDate.Time
		rec.JoinDate = &t
	}
	if startDate.Valid {
		t := startDate.Time
		rec.StartDate = &t
	}
	if endDate.Valid {
		t := endDate.Time
		rec.EndDate = &t
	}
	return rec, nil
}

func equalsYes(raw string) bool {
	n := normalize.ServerKey(raw)
	return n == "yes" || n == "true" || n == "1"
}
