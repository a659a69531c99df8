// Package store provides storage backends.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
	"github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running PostgreSQL migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// GetContact looks a contact up by channel and external id.
func (s *PostgresStore) GetContact(channel models.Channel, externalID string) (*models.Contact, error) {
	row := s.db.QueryRow(`SELECT id, channel, external_id, display_name, full_name, case_summary, case_notes,
		product_of_interest, flags, status, tags, created_at, updated_at
		FROM contacts WHERE channel = $1 AND external_id = $2`, channel, externalID)
	c, err := scanContact(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetContact failed", "error", err, "channel", channel, "externalID", externalID)
		return nil, fmt.Errorf("failed to query contact: %w", err)
	}
	return c, nil
}

// GetContactByID looks a contact up by internal id.
func (s *PostgresStore) GetContactByID(id string) (*models.Contact, error) {
	row := s.db.QueryRow(`SELECT id, channel, external_id, display_name, full_name, case_summary, case_notes,
		product_of_interest, flags, status, tags, created_at, updated_at
		FROM contacts WHERE id = $1`, id)
	c, err := scanContact(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetContactByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query contact: %w", err)
	}
	return c, nil
}

// SaveContact upserts a contact row in a single atomic statement.
func (s *PostgresStore) SaveContact(c models.Contact) error {
	flagsJSON, err := marshalFlags(c.Flags)
	if err != nil {
		return err
	}
	tagsJSON, err := marshalTags(c.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`INSERT INTO contacts
		(id, channel, external_id, display_name, full_name, case_summary, case_notes,
		 product_of_interest, flags, status, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			full_name = EXCLUDED.full_name,
			case_summary = EXCLUDED.case_summary,
			case_notes = EXCLUDED.case_notes,
			product_of_interest = EXCLUDED.product_of_interest,
			flags = EXCLUDED.flags,
			status = EXCLUDED.status,
			tags = EXCLUDED.tags,
			updated_at = EXCLUDED.updated_at`,
		c.ID, c.Channel, c.ExternalID, nilIfEmpty(c.DisplayName), nilIfEmpty(c.FullName),
		nilIfEmpty(c.CaseSummary), nilIfEmpty(c.CaseNotes), nilIfEmpty(c.ProductOfInterest),
		flagsJSON, c.Status, tagsJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveContact failed", "error", err, "contactID", c.ID)
		return fmt.Errorf("failed to save contact %s: %w", c.ID, err)
	}
	slog.Debug("PostgresStore SaveContact succeeded", "contactID", c.ID, "status", c.Status)
	return nil
}

// ListContacts returns all contacts, most recently updated first.
func (s *PostgresStore) ListContacts() ([]models.Contact, error) {
	rows, err := s.db.Query(`SELECT id, channel, external_id, display_name, full_name, case_summary, case_notes,
		product_of_interest, flags, status, tags, created_at, updated_at
		FROM contacts ORDER BY updated_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListContacts query failed", "error", err)
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact rows: %w", err)
	}
	return contacts, nil
}

// AddMessage appends a message; unique violations on the dedup index are
// surfaced as models.ErrDuplicateMessage.
func (s *PostgresStore) AddMessage(m models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages
		(id, contact_id, provider_message_id, direction, kind, body, transcript, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ContactID, m.ProviderMessageID, m.Direction, m.Kind,
		nilIfEmpty(m.Body), nilIfEmpty(m.Transcript), m.Timestamp)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			slog.Debug("PostgresStore AddMessage duplicate dropped", "contactID", m.ContactID, "providerMessageID", m.ProviderMessageID)
			return models.ErrDuplicateMessage
		}
		slog.Error("PostgresStore AddMessage failed", "error", err, "contactID", m.ContactID)
		return fmt.Errorf("failed to insert message for %s: %w", m.ContactID, err)
	}
	slog.Debug("PostgresStore AddMessage succeeded", "contactID", m.ContactID, "direction", m.Direction)
	return nil
}

// ListMessages returns a contact's messages in chronological order.
func (s *PostgresStore) ListMessages(contactID string, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, contact_id, provider_message_id, direction, kind, body, transcript, timestamp
		FROM messages WHERE contact_id = $1 ORDER BY timestamp ASC`, contactID)
	if err != nil {
		slog.Error("PostgresStore ListMessages query failed", "error", err, "contactID", contactID)
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
func (s *PostgresStore) AddAppointment(a models.Appointment) error {
	_, err := s.db.Exec(`INSERT INTO appointments
		(id, contact_id, subject, starts_at, duration_minutes, notes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.ContactID, a.Subject, a.StartsAt, a.DurationMinutes,
		nilIfEmpty(a.Notes), a.Status, a.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddAppointment failed", "error", err, "contactID", a.ContactID)
		return fmt.Errorf("failed to insert appointment for %s: %w", a.ContactID, err)
	}
	return nil
}

// ListAppointments returns a contact's appointments, earliest first.
func (s *PostgresStore) ListAppointments(contactID string) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, contact_id, subject, starts_at, duration_minutes, notes, status, created_at
		FROM appointments WHERE contact_id = $1 ORDER BY starts_at ASC`, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListAppointmentsBetween returns confirmed appointments inside the window.
func (s *PostgresStore) ListAppointmentsBetween(from, to time.Time) ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, contact_id, subject, starts_at, duration_minutes, notes, status, created_at
		FROM appointments WHERE status = $1 AND starts_at >= $2 AND starts_at < $3 ORDER BY starts_at ASC`,
		models.AppointmentStatusConfirmed, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// HasAppointment reports whether the contact has a confirmed appointment.
func (s *PostgresStore) HasAppointment(contactID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM appointments WHERE contact_id = $1 AND status = $2`,
		contactID, models.AppointmentStatusConfirmed).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count appointments: %w", err)
	}
	return count > 0, nil
}

// Close closes the PostgreSQL connection pool.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL connection pool")
	return s.db.Close()
}
