package domain

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Date and clock layouts accepted for services.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// DayNames is indexed by time.Weekday (0=Sunday).
var DayNames = [7]string{
	"Domingo",
	"Segunda-feira",
	"Terça-feira",
	"Quarta-feira",
	"Quinta-feira",
	"Sexta-feira",
	"Sábado",
}

var standardTimes = map[time.Weekday][]string{
	time.Thursday: {"20:00"},
	time.Saturday: {"20:00"},
	time.Sunday:   {"09:30", "18:30"},
}

// DefaultSlotCatalog returns the catalog seeded on first run.
func DefaultSlotCatalog() []string {
	return []string{"Recepção", "Café", "Coluna 1", "Coluna 2", "Abertura do culto", "Fundo da igreja"}
}

// SeedService describes one of the services created on first run.
type SeedService struct {
	Date        string
	Time        string
	Description string
	Open        bool
}

// DefaultSeedServices returns the initial service list.
func DefaultSeedServices() []SeedService {
	return []SeedService{
		{Date: "2023-11-23", Time: "20:00", Description: "Culto de Oração", Open: true},
		{Date: "2023-11-25", Time: "20:00", Description: "Reunião de Jovens", Open: true},
		{Date: "2023-11-26", Time: "09:30", Description: "EBD", Open: false},
	}
}

// ParseServiceDate validates a YYYY-MM-DD date.
func ParseServiceDate(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, ValidationError{Field: "date", Reason: "required"}
	}
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	return t, nil
}

// ValidateServiceTime validates an HH:MM 24-hour clock time.
func ValidateServiceTime(clock string) error {
	_, err := NormalizeServiceTime(clock)
	return err
}

// NormalizeServiceTime trims clock and returns it once it is a valid HH:MM
// 24-hour time.
func NormalizeServiceTime(clock string) (string, error) {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return "", ValidationError{Field: "time", Reason: "required"}
	}
	if len(clock) != len(TimeLayout) {
		return "", ValidationError{Field: "time", Reason: "expected HH:MM"}
	}
	if _, err := time.Parse(TimeLayout, clock); err != nil {
		return "", ValidationError{Field: "time", Reason: "expected HH:MM"}
	}
	return clock, nil
}

// NormalizeServiceDate trims date and returns it with its day name.
func NormalizeServiceDate(date string) (string, string, error) {
	t, err := ParseServiceDate(date)
	if err != nil {
		return "", "", err
	}
	return t.Format(DateLayout), DayNames[t.Weekday()], nil
}

// DayOfWeek returns the Portuguese day name for a YYYY-MM-DD date.
func DayOfWeek(date string) (string, error) {
	t, err := ParseServiceDate(date)
	if err != nil {
		return "", err
	}
	return DayNames[t.Weekday()], nil
}

// StandardTimes returns the usual meeting times for the weekday of date, or
// nil when no meeting is customary on that day.
func StandardTimes(date string) ([]string, error) {
	t, err := ParseServiceDate(date)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), standardTimes[t.Weekday()]...), nil
}

// NormalizeSlotName trims surrounding space and folds the name to NFC so
// visually identical names compare equal.
func NormalizeSlotName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateSlotName normalizes name and rejects empty values.
func ValidateSlotName(name string) (string, error) {
	n := NormalizeSlotName(name)
	if n == "" {
		return "", ValidationError{Field: "slot_name", Reason: "required"}
	}
	return n, nil
}

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatServiceLabel renders "DD/MM/YYYY (HH:MM)" for a service.
func FormatServiceLabel(s Service) string {
	label := s.Date
	if t, err := time.Parse(DateLayout, s.Date); err == nil {
		label = t.Format("02/01/2006")
	}
	return label + " (" + s.Time + ")"
}
