// Package store defines C2: the durable-table contract and the small library of
// atomic queries the rest of the system builds on. It never owns business logic —
// callers (ingest, reconcile, assetsvc) sequence these calls inside a transaction.
//
// Grounded on the teacher's storage.Storage interface (internal/storage/provider.go)
// and its Dolt implementation's query shape (internal/storage/dolt/store.go), with
// concrete backends in ./sqlstore for Postgres (lib/pq) and SQLite
// (modernc.org/sqlite) sharing one SQL layer.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/djhieudonald74-stack/asset-registry/internal/model"
)

// AssetStub is one row to insert in bulk ingest step 1: a fresh Asset, stub or
// pre-hashed depending on whether Hash is set.
type AssetStub struct {
	ID        uuid.UUID
	Hash      *string
	SizeBytes int64
	MimeType  *string
}

// CacheStateInsert is one row to insert in bulk ingest step 2.
type CacheStateInsert struct {
	AssetID  uuid.UUID
	FilePath string
	MtimeNs  *int64
}

// ReferenceInsert is one row to insert in bulk ingest step 6.
type ReferenceInsert struct {
	ID           uuid.UUID
	AssetID      uuid.UUID
	OwnerID      string
	Name         string
	UserMetadata []byte
}

// CacheStateWithAsset is the join the reconciler reads per root (spec §4.4 step 2).
type CacheStateWithAsset struct {
	CacheState  model.CacheState
	AssetHash   *string
	AssetSize   int64
}

// SortField enumerates list_assets_page's sortable columns.
type SortField string

const (
	SortName           SortField = "name"
	SortCreatedAt      SortField = "created_at"
	SortUpdatedAt      SortField = "updated_at"
	SortLastAccessTime SortField = "last_access_time"
	SortSize           SortField = "size"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ListFilter carries list_assets_page's query parameters (spec §4.6).
type ListFilter struct {
	OwnerID        string
	IncludeTags    []string
	ExcludeTags    []string
	NameContains   string
	MetadataFilter map[string][]model.MetaValue // value lists OR together; a MetaNull value matches explicit-null or absent; an empty list matches any reference with the key
	EnrichmentMax  *model.EnrichmentLevel       // non-nil => only references strictly below this level (scanner ENRICH phase selection)
	Limit          int
	Offset         int
	Sort           SortField
	Order          SortOrder
}

// TagCountOrder enumerates list_tags' ordering options.
type TagCountOrder string

const (
	TagOrderCountDesc TagCountOrder = "count_desc"
	TagOrderNameAsc   TagCountOrder = "name_asc"
)

// TagFilter carries list_tags' query parameters.
type TagFilter struct {
	PrefixFilter string
	HideZero     bool
	Order        TagCountOrder
	Limit        int
	Offset       int
}

// TagCount is one row of list_tags' response.
type TagCount struct {
	Name  string
	Type  string
	Count int64
}

// UpdateReferenceFields carries update_asset_metadata's optional fields; nil means
// "leave unchanged".
type UpdateReferenceFields struct {
	Name         *string
	UserMetadata []byte // nil => unchanged; non-nil (including "null") => replace
	HasMetadata  bool
}

// Tx is the transaction handle every mutating Ops method accepts, per spec §4.2
// ("all mutating operations accept a session/transaction handle").
type Tx interface {
	Ops
	Commit() error
	Rollback() error
}

// Ops is the atomic query library C2 exports. Both the top-level Store (running
// each call in its own implicit transaction) and a Tx (explicit transaction)
// implement it, the way the teacher's sqlite package accepts either *sql.DB or
// *sql.Tx through a shared execer interface.
type Ops interface {
	// --- Assets ---
	InsertAssetStubs(ctx context.Context, rows []AssetStub) error
	GetAssetByHash(ctx context.Context, hash string) (*model.Asset, error)
	GetAssetByID(ctx context.Context, id uuid.UUID) (*model.Asset, error)
	DeleteAssets(ctx context.Context, ids []uuid.UUID) error
	PromoteAssetToHashed(ctx context.Context, id uuid.UUID, hash string, sizeBytes int64, mimeType *string) error
	SetAssetMimeType(ctx context.Context, id uuid.UUID, mimeType string) error
	GetUnreferencedUnhashedAssetIDs(ctx context.Context) ([]uuid.UUID, error)
	AssetHasReferenceOrActiveCacheState(ctx context.Context, id uuid.UUID) (bool, error)

	// --- CacheStates ---
	InsertCacheStatesIgnoreConflict(ctx context.Context, rows []CacheStateInsert) error
	ResolveWinningPaths(ctx context.Context, ourAssetIDByPath map[string]uuid.UUID) (winners []string, err error)
	UpsertCacheState(ctx context.Context, assetID uuid.UUID, path string, mtimeNs *int64) (created, updated bool, err error)
	RestoreCacheStatesByPaths(ctx context.Context, paths []string) error
	MarkCacheStatesMissingOutsidePrefixes(ctx context.Context, prefixes []string) (int64, error)
	GetActiveCacheStatesUnderPrefixes(ctx context.Context, prefixes []string) ([]CacheStateWithAsset, error)
	SetCacheStateVerify(ctx context.Context, id uuid.UUID, needsVerify bool) error
	DeleteCacheStates(ctx context.Context, ids []uuid.UUID) error
	GetCacheStatesByAsset(ctx context.Context, assetID uuid.UUID) ([]model.CacheState, error)

	// --- AssetReferences ---
	InsertReferencesIgnoreConflict(ctx context.Context, rows []ReferenceInsert) error
	GetAssetReferenceIDsByIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	GetReferenceByID(ctx context.Context, id uuid.UUID) (*model.AssetReference, error)
	GetReferenceByAssetOwnerName(ctx context.Context, assetID uuid.UUID, ownerID, name string) (*model.AssetReference, error)
	UpdateReference(ctx context.Context, id uuid.UUID, fields UpdateReferenceFields) error
	SetReferencePreview(ctx context.Context, id uuid.UUID, previewID *uuid.UUID) error
	SetReferenceEnrichmentLevel(ctx context.Context, id uuid.UUID, level model.EnrichmentLevel) error
	TouchLastAccessTime(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteReference(ctx context.Context, id uuid.UUID) error
	CountReferencesForAsset(ctx context.Context, assetID uuid.UUID) (int64, error)
	GetReferencesByAsset(ctx context.Context, assetID uuid.UUID) ([]model.AssetReference, error)
	ListAssetsPage(ctx context.Context, filter ListFilter) (model.Page[model.AssetListItem], error)
	GetAssetDetail(ctx context.Context, id uuid.UUID) (*model.AssetDetail, error)

	// --- Tags ---
	InsertReferenceTags(ctx context.Context, rows []model.ReferenceTag) error
	RemoveReferenceTags(ctx context.Context, referenceID uuid.UUID, tagNames []string) (removed []string, notPresent []string, err error)
	AddReferenceTags(ctx context.Context, referenceID uuid.UUID, names []string, tagType string, origin model.TagOrigin) (added []string, alreadyPresent []string, err error)
	ListTags(ctx context.Context, filter TagFilter) ([]TagCount, int64, error)
	RemoveReferenceTag(ctx context.Context, referenceID uuid.UUID, tagName string) (bool, error)

	// --- Metadata projection ---
	ReplaceReferenceMeta(ctx context.Context, referenceID uuid.UUID, rows []model.ReferenceMeta) error

	// --- Scanner audit trail ---
	InsertScannerRun(ctx context.Context, run model.ScannerRun) error
	UpdateScannerRun(ctx context.Context, run model.ScannerRun) error
	ListScannerRuns(ctx context.Context, limit int) ([]model.ScannerRun, error)
}

// Store is the top-level handle: it opens a transaction for Begin, and also
// implements Ops directly for callers that just need a single autocommit call.
type Store interface {
	Ops
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close() error
}
