package core

import (
	"context"

	"escala/pkg/domain"
)

// FullRosterFilename names the all-services roster export.
const FullRosterFilename = "escala_completa.csv"

const unfilledPlaceholder = "(sem voluntários)"

var (
	serviceRosterHeader = []string{"Area", "Servo", "Data", "Hora"}
	fullRosterHeader    = []string{"Data", "Hora", "Dia", "Descrição", "Area", "Servo"}
)

// ServiceSummary is a service with its assignments and fill statistics.
type ServiceSummary struct {
	Service     domain.Service `json:"service"`
	Assignments []Assignment   `json:"assignments"`
	Filled      int            `json:"filled"`
	Total       int            `json:"total"`
	FillRate    float64        `json:"fill_rate"`
	OpenSlots   []string       `json:"open_slots"`
}

// RosterTable is a tabular roster ready to be written as CSV by a caller.
type RosterTable struct {
	Filename string     `json:"filename"`
	Header   []string   `json:"header"`
	Rows     [][]string `json:"rows"`
}

// ListServices returns services ordered by date then time.
func (s *Service) ListServices() []domain.Service {
	return s.store.ListServices()
}

// GetService returns a service by ID.
func (s *Service) GetService(id string) (domain.Service, bool) {
	return s.store.GetService(id)
}

// ServiceAssignments returns the assignments of one service in registration order.
func (s *Service) ServiceAssignments(ctx context.Context, serviceID string) ([]Assignment, error) {
	var out []Assignment
	err := s.store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindService(serviceID); !ok {
			return domain.NotFoundError{Entity: EntityService, ID: serviceID}
		}
		out = assignmentsForService(view, serviceID)
		return nil
	})
	return out, err
}

// ServiceSummaries returns every service with its fill rate and open slots.
func (s *Service) ServiceSummaries(ctx context.Context) ([]ServiceSummary, error) {
	var out []ServiceSummary
	err := s.store.View(ctx, func(view TransactionView) error {
		services := view.ListServices()
		out = make([]ServiceSummary, 0, len(services))
		for _, svc := range services {
			out = append(out, summarize(svc, assignmentsForService(view, svc.ID)))
		}
		return nil
	})
	return out, err
}

// ServiceSummary returns the summary of one service.
func (s *Service) ServiceSummary(ctx context.Context, serviceID string) (ServiceSummary, error) {
	var out ServiceSummary
	err := s.store.View(ctx, func(view TransactionView) error {
		svc, ok := view.FindService(serviceID)
		if !ok {
			return domain.NotFoundError{Entity: EntityService, ID: serviceID}
		}
		out = summarize(svc, assignmentsForService(view, serviceID))
		return nil
	})
	return out, err
}

func summarize(svc domain.Service, assignments []Assignment) ServiceSummary {
	taken := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		taken[a.SlotName] = true
	}
	sum := ServiceSummary{
		Service:     svc,
		Assignments: assignments,
		Total:       len(svc.SlotNames),
		OpenSlots:   []string{},
	}
	if sum.Assignments == nil {
		sum.Assignments = []Assignment{}
	}
	for _, slot := range svc.SlotNames {
		if taken[slot] {
			sum.Filled++
		} else {
			sum.OpenSlots = append(sum.OpenSlots, slot)
		}
	}
	if sum.Total > 0 {
		sum.FillRate = float64(sum.Filled) / float64(sum.Total)
	}
	return sum
}

// StandardTimes returns the customary meeting times for the weekday of date.
func (s *Service) StandardTimes(date string) ([]string, error) {
	return domain.StandardTimes(date)
}

// ServiceRoster builds the roster of one service: one row per assignment, or
// a single placeholder row when nobody is assigned.
func (s *Service) ServiceRoster(ctx context.Context, serviceID string) (RosterTable, error) {
	var table RosterTable
	err := s.store.View(ctx, func(view TransactionView) error {
		svc, ok := view.FindService(serviceID)
		if !ok {
			return domain.NotFoundError{Entity: EntityService, ID: serviceID}
		}
		table = RosterTable{
			Filename: "escala_" + svc.Date + ".csv",
			Header:   append([]string(nil), serviceRosterHeader...),
			Rows:     [][]string{},
		}
		assignments := assignmentsForService(view, serviceID)
		if len(assignments) == 0 {
			table.Rows = append(table.Rows, []string{"", unfilledPlaceholder, svc.Date, svc.Time})
			return nil
		}
		for _, a := range assignments {
			table.Rows = append(table.Rows, []string{a.SlotName, a.VolunteerName, svc.Date, svc.Time})
		}
		return nil
	})
	return table, err
}

// FullRoster builds the roster of every service in date order. Services with
// no assignments get a placeholder row so they still appear.
func (s *Service) FullRoster(ctx context.Context) (RosterTable, error) {
	table := RosterTable{
		Filename: FullRosterFilename,
		Header:   append([]string(nil), fullRosterHeader...),
		Rows:     [][]string{},
	}
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, svc := range view.ListServices() {
			assignments := assignmentsForService(view, svc.ID)
			if len(assignments) == 0 {
				table.Rows = append(table.Rows, []string{svc.Date, svc.Time, svc.DayOfWeek, svc.Description, "", unfilledPlaceholder})
				continue
			}
			for _, a := range assignments {
				table.Rows = append(table.Rows, []string{svc.Date, svc.Time, svc.DayOfWeek, svc.Description, a.SlotName, a.VolunteerName})
			}
		}
		return nil
	})
	return table, err
}
