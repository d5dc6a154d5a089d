package models

import "strings"

// Platform identifies one of the external systems sales are reconciled from.
type Platform string

// Supported platforms
const (
	PlatformWooCommerce Platform = "woocommerce"
	PlatformEventbrite  Platform = "eventbrite"
	PlatformSquare      Platform = "square"
)

// AllPlatforms lists the platforms in their default import order.
var AllPlatforms = []Platform{PlatformWooCommerce, PlatformEventbrite, PlatformSquare}

// importSuffix tags records ingested by a historical backfill.
const importSuffix = "_import"

// DisplayName returns the label shown next to attendees and chart series.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformWooCommerce:
		return "WooCommerce"
	case PlatformEventbrite:
		return "Eventbrite"
	case PlatformSquare:
		return "Square"
	default:
		return string(p)
	}
}

// Valid reports whether p names a known platform.
func (p Platform) Valid() bool {
	for _, known := range AllPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// Source is the provenance tag stored on a SaleRecord, e.g. "square" or
// "square_import".
type Source string

// LiveSource returns the source tag used by webhook/poll ingestion.
func LiveSource(p Platform) Source {
	return Source(p)
}

// ImportSource returns the source tag used by backfills.
func ImportSource(p Platform) Source {
	return Source(string(p) + importSuffix)
}

// Platform strips the import tag.
func (s Source) Platform() Platform {
	return Platform(strings.TrimSuffix(string(s), importSuffix))
}

// IsImport reports whether the record was created by a backfill.
func (s Source) IsImport() bool {
	return strings.HasSuffix(string(s), importSuffix)
}

// Valid reports whether s is a live or import tag of a known platform.
func (s Source) Valid() bool {
	return s.Platform().Valid()
}
