package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// marshalFlags serializes the progress flag set for a single-column write.
func marshalFlags(f models.ProgressFlags) (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("failed to marshal progress flags: %w", err)
	}
	return string(b), nil
}

// marshalTags serializes contact tags; empty tag sets become NULL.
func marshalTags(tags []string) (interface{}, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(b), nil
}

// scanContact reads one contact row from either driver. Both drivers keep the
// same column order: id, channel, external_id, display_name, full_name,
// case_summary, case_notes, product_of_interest, flags, status, tags,
// created_at, updated_at.
func scanContact(scan func(dest ...interface{}) error) (*models.Contact, error) {
	var c models.Contact
	var displayName, fullName, caseSummary, caseNotes, product, flagsJSON, tagsJSON sql.NullString
	err := scan(
		&c.ID, &c.Channel, &c.ExternalID, &displayName, &fullName,
		&caseSummary, &caseNotes, &product, &flagsJSON, &c.Status, &tagsJSON,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.DisplayName = displayName.String
	c.FullName = fullName.String
	c.CaseSummary = caseSummary.String
	c.CaseNotes = caseNotes.String
	c.ProductOfInterest = product.String
	if flagsJSON.Valid && flagsJSON.String != "" {
		if err := json.Unmarshal([]byte(flagsJSON.String), &c.Flags); err != nil {
			slog.Error("store.scanContact: failed to unmarshal flags", "error", err, "contactID", c.ID)
			// Zero flags are safer than failing the whole read.
			c.Flags = models.ProgressFlags{}
		}
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &c.Tags); err != nil {
			slog.Error("store.scanContact: failed to unmarshal tags", "error", err, "contactID", c.ID)
			c.Tags = nil
		}
	}
	return &c, nil
}

// scanMessage reads one message row: id, contact_id, provider_message_id,
// direction, kind, body, transcript, timestamp.
func scanMessage(scan func(dest ...interface{}) error) (models.Message, error) {
	var m models.Message
	var body, transcript sql.NullString
	err := scan(&m.ID, &m.ContactID, &m.ProviderMessageID, &m.Direction, &m.Kind,
		&body, &transcript, &m.Timestamp)
	if err != nil {
		return m, err
	}
	m.Body = body.String
	m.Transcript = transcript.String
	return m, nil
}

// scanAppointment reads one appointment row: id, contact_id, subject,
// starts_at, duration_minutes, notes, status, created_at.
func scanAppointment(scan func(dest ...interface{}) error) (models.Appointment, error) {
	var a models.Appointment
	var notes sql.NullString
	err := scan(&a.ID, &a.ContactID, &a.Subject, &a.StartsAt, &a.DurationMinutes,
		&notes, &a.Status, &a.CreatedAt)
	if err != nil {
		return a, err
	}
	a.Notes = notes.String
	return a, nil
}

// nilIfEmpty returns nil for empty strings so nullable columns stay NULL.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
