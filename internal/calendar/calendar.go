// Package calendar computes open appointment slots over business hours and
// books appointments against the store.
package calendar

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/store"
)

// Default business-hour parameters.
const (
	DefaultOpenHour     = 9
	DefaultCloseHour    = 18
	DefaultSlotMinutes  = 60
	DefaultSlotCount    = 3
	DefaultLookaheadDay = 14
)

// Opts holds configuration options for the calendar service.
type Opts struct {
	OpenHour     int
	CloseHour    int
	SlotMinutes  int
	Location     *time.Location
	Now          func() time.Time
	DefaultSubj  string
	LookaheadDay int
}

// Option defines a configuration option for the calendar service.
type Option func(*Opts)

// WithHours sets the business-hour window. Slots start at openHour and the
// last slot ends at closeHour.
func WithHours(open, close int) Option {
	return func(o *Opts) {
		o.OpenHour = open
		o.CloseHour = close
	}
}

// WithSlotMinutes sets the slot duration.
func WithSlotMinutes(minutes int) Option {
	return func(o *Opts) { o.SlotMinutes = minutes }
}

// WithLocation sets the timezone slots are computed in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Service computes open slots and books appointments. Weekends are never
// offered.
type Service struct {
	st           store.Store
	openHour     int
	closeHour    int
	slotMinutes  int
	loc          *time.Location
	now          func() time.Time
	lookaheadDay int
}

// NewService creates a calendar service over the given store.
func NewService(st store.Store, opts ...Option) *Service {
	cfg := Opts{
		OpenHour:     DefaultOpenHour,
		CloseHour:    DefaultCloseHour,
		SlotMinutes:  DefaultSlotMinutes,
		Location:     time.Local,
		Now:          time.Now,
		LookaheadDay: DefaultLookaheadDay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		st:           st,
		openHour:     cfg.OpenHour,
		closeHour:    cfg.CloseHour,
		slotMinutes:  cfg.SlotMinutes,
		loc:          cfg.Location,
		now:          cfg.Now,
		lookaheadDay: cfg.LookaheadDay,
	}
}

// NextSlots returns the next count open slots after now, skipping weekends
// and starts already taken by a confirmed appointment.
func (s *Service) NextSlots(count int) ([]time.Time, error) {
	if count <= 0 {
		count = DefaultSlotCount
	}
	now := s.now().In(s.loc)
	horizon := now.AddDate(0, 0, s.lookaheadDay)

	booked, err := s.st.ListAppointmentsBetween(now, horizon)
	if err != nil {
		return nil, fmt.Errorf("failed to list booked appointments: %w", err)
	}
	taken := make(map[time.Time]bool, len(booked))
	for _, a := range booked {
		taken[a.StartsAt.In(s.loc)] = true
	}

	slots := make([]time.Time, 0, count)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	for !day.After(horizon) && len(slots) < count {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			for hour := s.openHour; hour*60+s.slotMinutes <= s.closeHour*60 && len(slots) < count; {
				start := day.Add(time.Duration(hour) * time.Hour)
				if start.After(now) && !taken[start] {
					slots = append(slots, start)
				}
				hour += s.slotMinutes / 60
				if s.slotMinutes%60 != 0 {
					break
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	slog.Debug("Service.NextSlots: slots computed", "count", len(slots))
	return slots, nil
}

// FormatSlots renders slots as a numbered list for prompt interpolation.
func (s *Service) FormatSlots(slots []time.Time) string {
	var b strings.Builder
	for i, slot := range slots {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d) %s as %s", i+1,
			slot.In(s.loc).Format("02/01/2006 15:04"),
			slot.In(s.loc).Add(time.Duration(s.slotMinutes)*time.Minute).Format("15:04"))
	}
	return b.String()
}

// Book creates a confirmed appointment for the contact at the given start.
func (s *Service) Book(contactID, subject string, startsAt time.Time) (models.Appointment, error) {
	appt := models.Appointment{
		ID:              uuid.New().String(),
		ContactID:       contactID,
		Subject:         subject,
		StartsAt:        startsAt,
		DurationMinutes: s.slotMinutes,
		Status:          models.AppointmentStatusConfirmed,
		CreatedAt:       s.now(),
	}
	if err := s.st.AddAppointment(appt); err != nil {
		return models.Appointment{}, fmt.Errorf("failed to book appointment: %w", err)
	}
	slog.Info("Service.Book: appointment booked", "contactID", contactID, "startsAt", startsAt)
	return appt, nil
}
