package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Attribute keys persisted on a mapping row. The ticket class id is stored
// under the canonical key and mirrored to the legacy keys that older readers
// still look for.
const (
	AttrEventbriteEventID       = "eventbrite_event_id"
	AttrEventbriteTicketClassID = "eventbrite_ticket_class_id"
	AttrSquareCatalogID         = "square_catalog_id"
)

// LegacyTicketClassKeys are older names for AttrEventbriteTicketClassID, in
// lookup order.
var LegacyTicketClassKeys = []string{"eventbrite_ticket_id", "ticket_class_id"}

// MappingIDs are the external identifiers a local product maps to.
type MappingIDs struct {
	TicketingEventID       string `json:"ticketing_event_id"`
	TicketingTicketClassID string `json:"ticketing_ticket_class_id"`
	POSCatalogID           string `json:"pos_catalog_id"`
}

// IsEmpty reports whether no identifier is set.
func (m MappingIDs) IsEmpty() bool {
	return m.TicketingEventID == "" && m.TicketingTicketClassID == "" && m.POSCatalogID == ""
}

// DateOverride replaces the base identifiers for one occurrence. Time is
// optional; when set the override applies to that date+time only.
type DateOverride struct {
	Date string `json:"date"`
	Time string `json:"time,omitempty"`
	MappingIDs
}

// ProductMapping is the base mapping of a product plus its date overrides,
// keyed by date key ("2025-06-01" or "2025-06-01 19:00").
type ProductMapping struct {
	ProductID     int64                 `json:"product_id"`
	Base          MappingIDs            `json:"base"`
	DateOverrides map[string]MappingIDs `json:"date_overrides,omitempty"`
}

// MappingScope tells which entry produced a ResolvedMapping.
type MappingScope string

const (
	MappingScopeNone     MappingScope = "none"
	MappingScopeBase     MappingScope = "base"
	MappingScopeDate     MappingScope = "date"
	MappingScopeDateTime MappingScope = "date_time"
)

// ResolvedMapping is the result of resolving a product (and optional
// occurrence) to external identifiers.
type ResolvedMapping struct {
	ProductID int64        `json:"product_id"`
	Scope     MappingScope `json:"scope"`
	DateKey   string       `json:"date_key,omitempty"`
	MappingIDs
}

// Found reports whether any mapping entry applied.
func (r ResolvedMapping) Found() bool {
	return r.Scope != MappingScopeNone && r.Scope != ""
}

// Attributes is the raw key/value payload stored per mapping row.
type Attributes map[string]string

// Value implements driver.Valuer
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *Attributes) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Attributes{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported attributes type %T", src)
	}
	out := Attributes{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode mapping attributes: %w", err)
	}
	*a = out
	return nil
}

// MappingRow is one persisted mapping entry. An empty DateKey is the base
// mapping of the product.
type MappingRow struct {
	ProductID  int64      `db:"product_id" json:"product_id"`
	DateKey    string     `db:"date_key" json:"date_key"`
	Attributes Attributes `db:"attributes" json:"attributes"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// IDs translates the stored attributes, including legacy key variants, into
// canonical identifiers.
func (r MappingRow) IDs() MappingIDs {
	ids := MappingIDs{
		TicketingEventID:       r.Attributes[AttrEventbriteEventID],
		TicketingTicketClassID: r.Attributes[AttrEventbriteTicketClassID],
		POSCatalogID:           r.Attributes[AttrSquareCatalogID],
	}
	if ids.TicketingTicketClassID == "" {
		for _, key := range LegacyTicketClassKeys {
			if v := r.Attributes[key]; v != "" {
				ids.TicketingTicketClassID = v
				break
			}
		}
	}
	return ids
}

// AttributesFor builds the persisted attributes for ids, mirroring the
// ticket class id to the legacy keys.
func AttributesFor(ids MappingIDs) Attributes {
	attrs := Attributes{
		AttrEventbriteEventID:       ids.TicketingEventID,
		AttrEventbriteTicketClassID: ids.TicketingTicketClassID,
		AttrSquareCatalogID:         ids.POSCatalogID,
	}
	for _, key := range LegacyTicketClassKeys {
		attrs[key] = ids.TicketingTicketClassID
	}
	return attrs
}
