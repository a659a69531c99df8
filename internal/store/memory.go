// Package store provides storage backends.
//
// This file implements the in-memory store used by tests and as the default
// development backend.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store implementation.
type MemoryStore struct {
	mu           sync.RWMutex
	contacts     map[string]models.Contact // keyed by contact id
	messages     []models.Message
	appointments []models.Appointment
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contacts: make(map[string]models.Contact)}
}

// GetContact looks a contact up by channel and external id.
func (s *MemoryStore) GetContact(channel models.Channel, externalID string) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contacts {
		if c.Channel == channel && c.ExternalID == externalID {
			cc := c
			return &cc, nil
		}
	}
	return nil, nil
}

// GetContactByID looks a contact up by internal id.
func (s *MemoryStore) GetContactByID(id string) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.contacts[id]; ok {
		cc := c
		return &cc, nil
	}
	return nil, nil
}

// SaveContact inserts or replaces a contact.
func (s *MemoryStore) SaveContact(c models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
	return nil
}

// ListContacts returns all contacts, most recently updated first.
func (s *MemoryStore) ListContacts() ([]models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// AddMessage appends a message, rejecting duplicate provider ids per contact.
func (s *MemoryStore) AddMessage(m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.messages {
		if existing.ContactID == m.ContactID && existing.ProviderMessageID == m.ProviderMessageID {
			return models.ErrDuplicateMessage
		}
	}
	s.messages = append(s.messages, m)
	return nil
}

// ListMessages returns a contact's messages in chronological order.
func (s *MemoryStore) ListMessages(contactID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ContactID == contactID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// AddAppointment persists an appointment.
func (s *MemoryStore) AddAppointment(a models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = append(s.appointments, a)
	return nil
}

// ListAppointments returns a contact's appointments, earliest first.
func (s *MemoryStore) ListAppointments(contactID string) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Appointment
	for _, a := range s.appointments {
		if a.ContactID == contactID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// ListAppointmentsBetween returns confirmed appointments inside the window.
func (s *MemoryStore) ListAppointmentsBetween(from, to time.Time) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Appointment
	for _, a := range s.appointments {
		if a.Status != models.AppointmentStatusConfirmed {
			continue
		}
		if !a.StartsAt.Before(from) && a.StartsAt.Before(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// HasAppointment reports whether the contact has a confirmed appointment.
func (s *MemoryStore) HasAppointment(contactID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.appointments {
		if a.ContactID == contactID && a.Status == models.AppointmentStatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
