// Package model holds the plain data records returned across service boundaries.
//
// None of these types carry a database handle or transaction: services copy rows
// into these structs before a session closes, the way the teacher's StorageProvider
// hands back plain *types.Issue values rather than live ORM objects.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TagOrigin records how a ReferenceTag came to exist.
type TagOrigin string

const (
	TagOriginManual    TagOrigin = "manual"
	TagOriginAutomatic TagOrigin = "automatic"
)

// EnrichmentLevel is the monotone 0/1/2 counter described in the glossary.
type EnrichmentLevel int

const (
	EnrichmentStub     EnrichmentLevel = 0
	EnrichmentMetadata EnrichmentLevel = 1
	EnrichmentHashed   EnrichmentLevel = 2
)

// Root names the top-level buckets a CacheState path can belong to.
type Root string

const (
	RootModels Root = "models"
	RootInput  Root = "input"
	RootOutput Root = "output"
)

// Asset is a content identity: a hash (once known) and a size, independent of path.
type Asset struct {
	ID        uuid.UUID
	Hash      *string // nil => stub asset
	SizeBytes int64
	MimeType  *string
	CreatedAt time.Time
}

// IsStub reports whether this Asset has not yet been hashed.
func (a Asset) IsStub() bool { return a.Hash == nil }

// AssetReference is a named, owned, taggable handle onto an Asset.
type AssetReference struct {
	ID              uuid.UUID
	AssetID         uuid.UUID
	OwnerID         string // "" => public
	Name            string
	PreviewID       *uuid.UUID
	UserMetadata    []byte // opaque JSON, exact bytes of the stored document
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastAccessTime  time.Time
	EnrichmentLevel EnrichmentLevel
}

// VisibleTo reports whether this reference is visible to the given owner.
func (r AssetReference) VisibleTo(ownerID string) bool {
	return r.OwnerID == "" || r.OwnerID == ownerID
}

// CacheState binds an Asset to an absolute filesystem path.
type CacheState struct {
	ID          uuid.UUID
	AssetID     uuid.UUID
	FilePath    string
	MtimeNs     *int64
	NeedsVerify bool
	IsMissing   bool
}

// Tag is the primary-keyed (name, tag_type) pair.
type Tag struct {
	Name string
	Type string
}

// ReferenceTag is the many-to-many join row between AssetReference and Tag.
type ReferenceTag struct {
	ReferenceID uuid.UUID
	TagName     string
	Origin      TagOrigin
	AddedAt     time.Time
}

// MetaValueKind tags the variant carried by a ReferenceMeta row.
type MetaValueKind int

const (
	MetaNull MetaValueKind = iota
	MetaBool
	MetaNum
	MetaStr
	MetaJSON
)

// MetaValue is the tagged variant the spec's design notes call for: a single
// ReferenceMeta row carries exactly one populated field, discriminated by Kind.
type MetaValue struct {
	Kind MetaValueKind
	Bool bool
	Num  decimal.Decimal
	Str  string
	JSON []byte // raw JSON for object/mixed-list values
}

// ReferenceMeta is one row of the typed projection of AssetReference.UserMetadata.
type ReferenceMeta struct {
	ReferenceID uuid.UUID
	Key         string
	Ordinal     int
	Value       MetaValue
}

// ScannerRunState mirrors the scanner's closed state set for the audit trail.
type ScannerRunState string

const (
	ScannerRunRunning   ScannerRunState = "running"
	ScannerRunCompleted ScannerRunState = "completed"
	ScannerRunCancelled ScannerRunState = "cancelled"
	ScannerRunFailed    ScannerRunState = "failed"
)

// ScannerRun is the observational audit row described in SPEC_FULL.md §3.
type ScannerRun struct {
	ID         uuid.UUID
	Phase      string
	State      ScannerRunState
	StartedAt  time.Time
	FinishedAt *time.Time
	Scanned    int64
	Created    int64
	Skipped    int64
	ErrorCount int64
}

// AssetDetail is the full-detail response shape for GetAssetDetail.
type AssetDetail struct {
	Reference AssetReference
	Asset     Asset
	Tags      []ReferenceTag
	CacheStates []CacheState
}

// AssetListItem is one row of a listing page.
type AssetListItem struct {
	Reference AssetReference
	Asset     Asset
	Tags      []string
}

// Page is a generic paginated result with the total row count under the same
// predicate, per spec §4.6 list_assets_page.
type Page[T any] struct {
	Items []T
	Total int64
}
