// Package store provides storage backends for contacts, messages and
// appointments.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL drivers selected by DSN.
package store

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// Store is the persistence contract the orchestration engine depends on.
//
// Contact writes go through SaveContact as a whole-row upsert in a single
// statement, so the flag set read before a decision is written back
// atomically per contact.
type Store interface {
	// GetContact looks a contact up by channel and external id.
	// Returns (nil, nil) when the contact does not exist.
	GetContact(channel models.Channel, externalID string) (*models.Contact, error)
	// GetContactByID looks a contact up by internal id. (nil, nil) when absent.
	GetContactByID(id string) (*models.Contact, error)
	// SaveContact inserts or fully replaces a contact row.
	SaveContact(c models.Contact) error
	// ListContacts returns all contacts, most recently updated first.
	ListContacts() ([]models.Contact, error)

	// AddMessage appends a message to the log. A duplicate
	// (contact, provider message id) pair returns models.ErrDuplicateMessage.
	AddMessage(m models.Message) error
	// ListMessages returns messages for a contact in chronological order.
	// A limit <= 0 returns the full history; otherwise the most recent limit
	// messages are returned, still oldest-first.
	ListMessages(contactID string, limit int) ([]models.Message, error)

	// AddAppointment persists a new appointment.
	AddAppointment(a models.Appointment) error
	// ListAppointments returns a contact's appointments, earliest first.
	ListAppointments(contactID string) ([]models.Appointment, error)
	// ListAppointmentsBetween returns confirmed appointments overlapping the
	// window, earliest first. Used by the calendar to compute open slots.
	ListAppointmentsBetween(from, to time.Time) ([]models.Appointment, error)
	// HasAppointment reports whether the contact has a confirmed appointment.
	HasAppointment(contactID string) (bool, error)

	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType inspects a DSN and reports "postgres", "sqlite" or "unknown".
func DetectDSNType(dsn string) string {
	if dsn == "" {
		return "unknown"
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// New builds a Store from the DSN: Postgres for postgres-style DSNs, SQLite
// for file paths, and the in-memory store when no DSN is configured.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	switch DetectDSNType(cfg.DSN) {
	case "postgres":
		slog.Debug("store.New: selecting PostgreSQL backend")
		return NewPostgresStore(WithDSN(cfg.DSN))
	case "sqlite":
		slog.Debug("store.New: selecting SQLite backend")
		return NewSQLiteStore(WithDSN(cfg.DSN))
	default:
		slog.Info("store.New: no DSN configured, using in-memory store")
		return NewMemoryStore(), nil
	}
}
