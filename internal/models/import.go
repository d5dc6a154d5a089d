package models

import (
	"fmt"
	"time"
)

// CursorKind is the resume-token shape a platform paginates with.
type CursorKind string

const (
	CursorOffset CursorKind = "offset"
	CursorPage   CursorKind = "page"
	CursorToken  CursorKind = "token"
)

// Cursor is a per-source resume token. Only the field matching Kind is used.
type Cursor struct {
	Kind   CursorKind `json:"kind"`
	Offset int        `json:"offset,omitempty"`
	Page   int        `json:"page,omitempty"`
	Token  string     `json:"token,omitempty"`
}

// InitialCursor returns the starting cursor for kind.
func InitialCursor(kind CursorKind) Cursor {
	c := Cursor{Kind: kind}
	if kind == CursorPage {
		c.Page = 1
	}
	return c
}

// IsInitial reports whether c is still at its starting value.
func (c Cursor) IsInitial() bool {
	return c == InitialCursor(c.Kind)
}

// Validate checks that c is a well-formed cursor of the expected kind.
func (c Cursor) Validate(kind CursorKind) error {
	if c.Kind != kind {
		return Validationf("cursor kind %q, expected %q", c.Kind, kind)
	}
	switch kind {
	case CursorOffset:
		if c.Offset < 0 || c.Page != 0 || c.Token != "" {
			return Validationf("malformed offset cursor")
		}
	case CursorPage:
		if c.Page < 1 || c.Offset != 0 || c.Token != "" {
			return Validationf("malformed page cursor")
		}
	case CursorToken:
		if c.Offset != 0 || c.Page != 0 {
			return Validationf("malformed token cursor")
		}
	}
	return nil
}

// SourceStatus is the lifecycle state of one source within a backfill.
type SourceStatus string

const (
	SourcePending  SourceStatus = "pending"
	SourceActive   SourceStatus = "active"
	SourceComplete SourceStatus = "complete"
)

// SourceProgress tracks one source of a backfill.
type SourceProgress struct {
	Name      string       `json:"name"`
	Status    SourceStatus `json:"status"`
	Cursor    Cursor       `json:"cursor"`
	Processed int          `json:"processed"`
	// Total is the platform's record estimate, 0 when unknown.
	Total int `json:"total,omitempty"`
}

// ImportState is the client-held token threaded through backfill steps.
type ImportState struct {
	RunID          string           `json:"run_id"`
	StartDate      string           `json:"start_date"`
	EndDate        string           `json:"end_date"`
	Sources        []SourceProgress `json:"sources"`
	SourceIndex    int              `json:"source_index"`
	TotalProcessed int              `json:"total_processed"`
}

// NewImportState builds the initial state for a run. Cursor kinds are filled
// in when a source is activated.
func NewImportState(runID, startDate, endDate string, sources []string) *ImportState {
	state := &ImportState{
		RunID:     runID,
		StartDate: startDate,
		EndDate:   endDate,
		Sources:   make([]SourceProgress, len(sources)),
	}
	for i, name := range sources {
		state.Sources[i] = SourceProgress{Name: name, Status: SourcePending}
	}
	return state
}

// Clone returns a deep copy so a failed step can leave the input untouched.
func (s *ImportState) Clone() *ImportState {
	out := *s
	out.Sources = append([]SourceProgress(nil), s.Sources...)
	return &out
}

// Complete reports whether every source has been drained.
func (s *ImportState) Complete() bool {
	return s.SourceIndex >= len(s.Sources)
}

// Range parses the date range of the run.
func (s *ImportState) Range() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, s.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, Validationf("invalid start date %q", s.StartDate)
	}
	end, err := time.Parse(DateLayout, s.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, Validationf("invalid end date %q", s.EndDate)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, Validationf("end date %s before start date %s", s.EndDate, s.StartDate)
	}
	return start, end, nil
}

// Validate checks the structural invariants of the state: sources before the
// index are complete, sources after it are pending at their initial cursor.
func (s *ImportState) Validate() error {
	if _, _, err := s.Range(); err != nil {
		return err
	}
	if len(s.Sources) == 0 {
		return Validationf("no sources selected")
	}
	if s.SourceIndex < 0 || s.SourceIndex > len(s.Sources) {
		return Validationf("source index %d out of range", s.SourceIndex)
	}
	if s.TotalProcessed < 0 {
		return Validationf("negative processed count")
	}
	for i, src := range s.Sources {
		switch {
		case i < s.SourceIndex:
			if src.Status != SourceComplete {
				return Validationf("source %q before active index is %s", src.Name, src.Status)
			}
		case i > s.SourceIndex:
			if src.Status != SourcePending || !src.Cursor.IsInitial() {
				return Validationf("source %q after active index already started", src.Name)
			}
		default:
			switch src.Status {
			case SourcePending, SourceActive, SourceComplete:
			default:
				return Validationf("source %q has unknown status %q", src.Name, src.Status)
			}
		}
	}
	return nil
}

// Progress returns the completion percentage. It stays below 100 until every
// source is complete.
func (s *ImportState) Progress() float64 {
	if len(s.Sources) == 0 || s.Complete() {
		return 100
	}
	completed := 0.0
	for _, src := range s.Sources {
		if src.Status == SourceComplete {
			completed++
		}
	}
	active := s.Sources[s.SourceIndex]
	if active.Status != SourceComplete {
		completed += partialFraction(active)
	}
	pct := completed / float64(len(s.Sources)) * 100
	if pct > 99 {
		pct = 99
	}
	return pct
}

func partialFraction(src SourceProgress) float64 {
	switch {
	case src.Total > 0:
		f := float64(src.Processed) / float64(src.Total)
		if f > 0.99 {
			f = 0.99
		}
		return f
	case src.Processed > 0:
		return 0.5
	default:
		return 0
	}
}

// LogEntry is one human-readable line returned to the caller of a step.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Source  string    `json:"source"`
	Action  string    `json:"action"`
	Outcome string    `json:"outcome"`
	Message string    `json:"message"`
}

func (l LogEntry) String() string {
	return fmt.Sprintf("[%s] %s %s: %s", l.Source, l.Action, l.Outcome, l.Message)
}
