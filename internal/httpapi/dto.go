package httpapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/djhieudonald74-stack/asset-registry/internal/model"
)

// assetDTO is the wire shape for an Asset, independent of the internal
// model's field layout so storage changes don't ripple into the API.
type assetDTO struct {
	ID        string  `json:"id"`
	Hash      *string `json:"hash"`
	SizeBytes int64   `json:"size_bytes"`
	MimeType  *string `json:"mime_type,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func toAssetDTO(a model.Asset) assetDTO {
	return assetDTO{
		ID:        a.ID.String(),
		Hash:      a.Hash,
		SizeBytes: a.SizeBytes,
		MimeType:  a.MimeType,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

type referenceDTO struct {
	ID              string          `json:"id"`
	AssetID         string          `json:"asset_id"`
	OwnerID         string          `json:"owner_id,omitempty"`
	Name            string          `json:"name"`
	PreviewID       *string         `json:"preview_id,omitempty"`
	UserMetadata    json.RawMessage `json:"user_metadata,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
	LastAccessTime  string          `json:"last_access_time"`
	EnrichmentLevel int             `json:"enrichment_level"`
}

func toReferenceDTO(r model.AssetReference) referenceDTO {
	var preview *string
	if r.PreviewID != nil {
		s := r.PreviewID.String()
		preview = &s
	}
	var meta json.RawMessage
	if len(r.UserMetadata) > 0 {
		meta = r.UserMetadata
	}
	return referenceDTO{
		ID:              r.ID.String(),
		AssetID:         r.AssetID.String(),
		OwnerID:         r.OwnerID,
		Name:            r.Name,
		PreviewID:       preview,
		UserMetadata:    meta,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
		LastAccessTime:  r.LastAccessTime.Format(time.RFC3339),
		EnrichmentLevel: int(r.EnrichmentLevel),
	}
}

type listItemDTO struct {
	Reference referenceDTO `json:"reference"`
	Asset     assetDTO     `json:"asset"`
	Tags      []string     `json:"tags,omitempty"`
}

func toListItemDTO(item model.AssetListItem) listItemDTO {
	return listItemDTO{
		Reference: toReferenceDTO(item.Reference),
		Asset:     toAssetDTO(item.Asset),
		Tags:      item.Tags,
	}
}

type pageDTO struct {
	Items []listItemDTO `json:"items"`
	Total int64         `json:"total"`
}

func toPageDTO(p model.Page[model.AssetListItem]) pageDTO {
	items := make([]listItemDTO, len(p.Items))
	for i, it := range p.Items {
		items[i] = toListItemDTO(it)
	}
	return pageDTO{Items: items, Total: p.Total}
}

type cacheStateDTO struct {
	ID          string `json:"id"`
	FilePath    string `json:"file_path"`
	NeedsVerify bool   `json:"needs_verify"`
	IsMissing   bool   `json:"is_missing"`
}

type tagDTO struct {
	TagName string `json:"tag_name"`
	Origin  string `json:"origin"`
	AddedAt string `json:"added_at"`
}

type assetDetailDTO struct {
	Reference   referenceDTO    `json:"reference"`
	Asset       assetDTO        `json:"asset"`
	Tags        []tagDTO        `json:"tags"`
	CacheStates []cacheStateDTO `json:"cache_states"`
}

func toAssetDetailDTO(d model.AssetDetail) assetDetailDTO {
	tags := make([]tagDTO, len(d.Tags))
	for i, t := range d.Tags {
		tags[i] = tagDTO{TagName: t.TagName, Origin: string(t.Origin), AddedAt: t.AddedAt.Format(time.RFC3339)}
	}
	states := make([]cacheStateDTO, len(d.CacheStates))
	for i, cs := range d.CacheStates {
		states[i] = cacheStateDTO{ID: cs.ID.String(), FilePath: cs.FilePath, NeedsVerify: cs.NeedsVerify, IsMissing: cs.IsMissing}
	}
	return assetDetailDTO{
		Reference:   toReferenceDTO(d.Reference),
		Asset:       toAssetDTO(d.Asset),
		Tags:        tags,
		CacheStates: states,
	}
}

type tagCountDTO struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

type scannerRunDTO struct {
	ID         string  `json:"id"`
	Phase      string  `json:"phase"`
	State      string  `json:"state"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Scanned    int64   `json:"scanned"`
	Created    int64   `json:"created"`
	Skipped    int64   `json:"skipped"`
	ErrorCount int64   `json:"error_count"`
}

func toScannerRunDTO(r model.ScannerRun) scannerRunDTO {
	var finished *string
	if r.FinishedAt != nil {
		s := r.FinishedAt.Format(time.RFC3339)
		finished = &s
	}
	return scannerRunDTO{
		ID:         r.ID.String(),
		Phase:      r.Phase,
		State:      string(r.State),
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		FinishedAt: finished,
		Scanned:    r.Scanned,
		Created:    r.Created,
		Skipped:    r.Skipped,
		ErrorCount: r.ErrorCount,
	}
}

func parseUUIDParam(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}
