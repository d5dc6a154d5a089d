package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/timeparse"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

// Attendee source filters.
const (
	AttendeeSourceAll = "all"
)

// AttendeeService builds the merged attendee list of one date from the
// order-system ledger and the ticketing platform.
type AttendeeService struct {
	repo     SalesRepository
	mappings *MappingService
	registry *platform.Registry
	logger   *zap.Logger
}

// NewAttendeeService creates a new attendee service
func NewAttendeeService(repo SalesRepository, mappings *MappingService, registry *platform.Registry) *AttendeeService {
	return &AttendeeService{
		repo:     repo,
		mappings: mappings,
		registry: registry,
		logger:   util.GetLogger(),
	}
}

// GetAttendees returns the attendees expected on date. source is "all",
// "woocommerce" or "eventbrite".
//
// An order-system attendee suppresses a ticketing attendee with the same
// e-mail, never the reverse.
func (s *AttendeeService) GetAttendees(ctx context.Context, date time.Time, source string) ([]models.Attendee, error) {
	ctx, span := util.StartSpan(ctx, "AttendeeService.GetAttendees")
	defer span.End()

	if source == "" {
		source = AttendeeSourceAll
	}
	wantOrders := source == AttendeeSourceAll || source == string(models.PlatformWooCommerce)
	wantTickets := source == AttendeeSourceAll || source == string(models.PlatformEventbrite)
	if !wantOrders && !wantTickets {
		return nil, models.Validationf("unknown attendee source %q", source)
	}

	var orders, tickets []models.Attendee
	if wantOrders {
		var err error
		if orders, err = s.orderAttendees(ctx, date); err != nil {
			return nil, err
		}
	}
	if wantTickets {
		var err error
		tickets, err = s.ticketAttendees(ctx, date)
		if err != nil {
			if source != AttendeeSourceAll {
				return nil, err
			}
			s.logger.Warn("Ticketing attendees unavailable, returning order attendees only",
				zap.String("date", date.Format(models.DateLayout)),
				zap.Error(err))
		}
	}

	return mergeAttendees(orders, tickets), nil
}

// mergeAttendees drops ticketing attendees whose e-mail already appears in
// the order-system list.
func mergeAttendees(orders, tickets []models.Attendee) []models.Attendee {
	seen := make(map[string]struct{}, len(orders))
	for _, a := range orders {
		if email := strings.ToLower(strings.TrimSpace(a.Email)); email != "" {
			seen[email] = struct{}{}
		}
	}

	merged := append([]models.Attendee{}, orders...)
	for _, a := range tickets {
		if _, dup := seen[strings.ToLower(strings.TrimSpace(a.Email))]; dup {
			continue
		}
		merged = append(merged, a)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].EventTime != merged[j].EventTime {
			return merged[i].EventTime < merged[j].EventTime
		}
		return strings.ToLower(merged[i].Name) < strings.ToLower(merged[j].Name)
	})
	return merged
}

func (s *AttendeeService) orderAttendees(ctx context.Context, date time.Time) ([]models.Attendee, error) {
	sales, err := s.repo.ListSales(ctx, date, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}

	key := date.Format(models.DateLayout)
	var out []models.Attendee
	for _, rec := range sales {
		if rec.Platform != models.PlatformWooCommerce || rec.EventDateKey() != key {
			continue
		}
		out = append(out, models.Attendee{
			Name:      rec.CustomerName,
			Email:     strings.ToLower(rec.CustomerEmail),
			Status:    rec.Status,
			Quantity:  rec.Quantity,
			ProductID: rec.ProductID,
			EventTime: rec.EventTime,
			Source:    models.PlatformWooCommerce.DisplayName(),
			OrderRef:  rec.SourceRecordID,
		})
	}
	return out, nil
}

type eventTarget struct {
	productID int64
	clock     string
}

// ticketAttendees reads the attendees of every event the mappings resolve to
// on date.
func (s *AttendeeService) ticketAttendees(ctx context.Context, date time.Time) ([]models.Attendee, error) {
	adapter, err := s.registry.Get(string(models.PlatformEventbrite))
	if errors.Is(err, models.ErrConfigIncomplete) || errors.Is(err, models.ErrNotFound) {
		s.logger.Debug("Ticketing platform unavailable for attendee list", zap.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lister, ok := adapter.(platform.AttendeeLister)
	if !ok {
		return nil, nil
	}

	targets := s.eventsOn(ctx, date.Format(models.DateLayout))
	var out []models.Attendee
	for _, eventID := range sortedKeys(targets) {
		attendees, err := lister.ListEventAttendees(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("failed to list attendees of event %s: %w", eventID, err)
		}
		t := targets[eventID]
		for _, a := range attendees {
			a.ProductID = t.productID
			if a.EventTime == "" {
				a.EventTime = t.clock
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// eventsOn resolves, per product, the ticketing events of date: every
// override on that date, or the base event when the product has none.
func (s *AttendeeService) eventsOn(ctx context.Context, date string) map[string]eventTarget {
	targets := make(map[string]eventTarget)
	for _, m := range s.mappings.GetAllMappings(ctx) {
		overridden := false
		for _, key := range sortedOverrideKeys(m.DateOverrides) {
			keyDate, clock := timeparse.SplitDateKey(key)
			if keyDate != date {
				continue
			}
			overridden = true
			id := m.DateOverrides[key].TicketingEventID
			if id == "" {
				continue
			}
			// the earliest occurrence sharing an event keeps it
			if _, taken := targets[id]; !taken {
				targets[id] = eventTarget{productID: m.ProductID, clock: clock}
			}
		}
		if !overridden && m.Base.TicketingEventID != "" {
			if _, taken := targets[m.Base.TicketingEventID]; !taken {
				targets[m.Base.TicketingEventID] = eventTarget{productID: m.ProductID}
			}
		}
	}
	return targets
}

func sortedOverrideKeys(m map[string]models.MappingIDs) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(m map[string]eventTarget) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
