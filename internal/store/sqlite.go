// Package store provides storage backends.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
	"github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on top of a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path).
// The parent directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// GetContact looks a contact up by channel and external id.
func (s *SQLiteStore) GetContact(channel models.Channel, externalID string) (*models.Contact, error) {
	row := s.db.QueryRow(`SELECT id, channel, external_id, display_name, full_name, case_summary, case_notes,
		product_of_interest, flags, status, tags, created_at, updated_at
		FROM contacts WHERE channel = ? AND external_id = ?`, channel, externalID)
	c, err := scanContact(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetContact failed", "error", err, "channel", channel, "externalID", externalID)
		return nil, fmt.Errorf("failed to query contact: %w", err)
	}
	return c, nil
}

// GetContactByID looks a contact up by internal id.
func (s *SQLiteStore) GetContactByID(id string) (*models.Contact, error) {
	row := s.db.QueryRow(`SELECT id, channel, external_id, display_name, full_name, case_summary, case_notes,
		product_of_interest, flags, status, tags, created_at, updated_at
		FROM contacts WHERE id = ?`, id)
	c, err := scanContact(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetContactByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query contact: %w", err)
	}
	return c, nil
}

// SaveContact inserts or replaces a contact row in a single statement.
func (s *SQLiteStore) SaveContact(c models.Contact) error {
	flagsJSON, err := marshalFlags(c.Flags)
	if err != nil {
		return err
	}
	tagsJSON, err := marshalTags(c.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO contacts
		(id, channel, external_id, display_name, full_name, case_summary, case_notes,
		 product_of_interest, flags, status, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Channel, c.ExternalID, nilIfEmpty(c.DisplayName), nilIfEmpty(c.FullName),
		nilIfEmpty(c.CaseSummary), nilIfEmpty(c.CaseNotes), nilIfEmpty(c.ProductOfInterest),
		flagsJSON, c.Status, tagsJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveContact failed", "error", err, "contactID", c.ID)
		return fmt.Errorf("failed to save contact %s: %w", c.ID, err)
	}
	slog.Debug("SQLiteStore SaveContact succeeded", "contactID", c.ID, "status", c.Status)
	return nil
}

// ListContacts returns all contacts, most recently updated first.
func (s *SQLiteStore) ListContacts() ([]models.Contact, error) {
	rows, err := s.db.Query(`SELECT id, channel, external_id, display_name, full_name, case_summary, case_notes,
		product_of_interest, flags, status, tags, created_at, updated_at
		FROM contacts ORDER BY updated_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListContacts query failed", "error", err)
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows.Scan)
		if err != nil {
			slog.Error("SQLiteStore ListContacts scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact rows: %w", err)
	}
	return contacts, nil
}

// AddMessage appends a message; duplicate provider ids per contact are
// rejected via the unique index and surfaced as models.ErrDuplicateMessage.
func (s *SQLiteStore) AddMessage(m models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages
		(id, contact_id, provider_message_id, direction, kind, body, transcript, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ContactID, m.ProviderMessageID, m.Direction, m.Kind,
		nilIfEmpty(m.Body), nilIfEmpty(m.Transcript), m.Timestamp)
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			slog.Debug("SQLiteStore AddMessage duplicate dropped", "contactID", m.ContactID, "providerMessageID", m.ProviderMessageID)
			return models.ErrDuplicateMessage
		}
		slog.Error("SQLiteStore AddMessage failed", "error", err, "contactID", m.ContactID)
		return fmt.Errorf("failed to insert message for %s: %w", m.ContactID, err)
	}
	slog.Debug("SQLiteStore AddMessage succeeded", "contactID", m.ContactID, "direction", m.Direction)
	return nil
}

// ListMessages returns a contact's messages in chronological order.
func (s *SQLiteStore) ListMessages(contactID string, limit int) ([]models.Message, error) {
	query := `SELECT id, contact_id, provider_message_id, direction, kind, body, transcript, timestamp
		FROM messages WHERE contact_id = ? ORDER BY timestamp ASC`
	rows, err := s.db.Query(query, contactID)
	if err != nil {
		slog.Error("SQLiteStore ListMessages query failed", "error", err, "contactID", contactID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// AddAppointment persists an appointment.
func (s *SQLiteStore) AddAppointment(a models.Appointment) error {
	_, err := s.db.Exec(`INSERT INTO appointments
		(id, contact_id, subject, starts_at, duration_minutes, notes, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ContactID, a.Subject, a.StartsAt, a.DurationMinutes,
		nilIfEmpty(a.Notes), a.Status, a.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddAppointment failed", "error", err, "contactID", a.ContactID)
		return fmt.Errorf("failed to insert appointment for %s: %w", a.ContactID, err)
	}
	slog.Debug("SQLiteStore AddAppointment succeeded", "contactID", a.ContactID, "startsAt", a.StartsAt)
	return nil
}

// ListAppointments returns a contact's appointments, earliest first.
func (s *SQLiteStore) ListAppointments(contactID string) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, contact_id, subject, starts_at, duration_minutes, notes, status, created_at
		FROM appointments WHERE contact_id = ? ORDER BY starts_at ASC`, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListAppointmentsBetween returns confirmed appointments inside the window.
func (s *SQLiteStore) ListAppointmentsBetween(from, to time.Time) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, contact_id, subject, starts_at, duration_minutes, notes, status, created_at
		FROM appointments WHERE status = ? AND starts_at >= ? AND starts_at < ? ORDER BY starts_at ASC`,
		models.AppointmentStatusConfirmed, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// HasAppointment reports whether the contact has a confirmed appointment.
func (s *SQLiteStore) HasAppointment(contactID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM appointments WHERE contact_id = ? AND status = ?`,
		contactID, models.AppointmentStatusConfirmed).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count appointments: %w", err)
	}
	return count > 0, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

func collectAppointments(rows *sql.Rows) ([]models.Appointment, error) {
	var appointments []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointment rows: %w", err)
	}
	return appointments, nil
}
