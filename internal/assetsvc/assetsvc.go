// Package assetsvc implements C6, the asset service API: the transactional
// operations exposed to the HTTP layer. Every operation opens one session,
// commits on success, and returns plain data values — never a store handle —
// the way the teacher's issue service hands callers *types.Issue rather than
// a live ORM row (internal/storage's StorageProvider contract).
package assetsvc

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/djhieudonald74-stack/asset-registry/internal/apierr"
	"github.com/djhieudonald74-stack/asset-registry/internal/folders"
	"github.com/djhieudonald74-stack/asset-registry/internal/hashing"
	"github.com/djhieudonald74-stack/asset-registry/internal/ingest"
	"github.com/djhieudonald74-stack/asset-registry/internal/metaproject"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
	"github.com/djhieudonald74-stack/asset-registry/internal/telemetry"
	"github.com/djhieudonald74-stack/asset-registry/internal/workerpool"
)

// Service is C6's entry point, holding the store handle and folder resolver
// needed to resolve upload destinations.
type Service struct {
	store    store.Store
	resolver *folders.Resolver
	pool     *workerpool.Pool
	metrics  *telemetry.Metrics
}

// New constructs a Service. workerCap bounds concurrent upload hashing (spec §5).
func New(st store.Store, resolver *folders.Resolver, workerCap int, metrics *telemetry.Metrics) *Service {
	return &Service{store: st, resolver: resolver, pool: workerpool.New(workerCap), metrics: metrics}
}

// UploadResult reports whether registration deduplicated against an existing
// Asset (spec §6: "Returns 201 if new, 200 if deduplicated").
type UploadResult struct {
	Reference model.AssetReference
	Asset     model.Asset
	Created   bool
}

// UploadFromTempPath implements upload_from_temp_path (spec §4.6).
func (s *Service) UploadFromTempPath(ctx context.Context, tempPath, name string, tags []string, userMetadata []byte, clientFilename, ownerID string, expectedHash *string) (*UploadResult, error) {
	var hash string
	var size int64
	err := s.pool.Do(ctx, func() error {
		var hashErr error
		hash, size, hashErr = hashing.HashFile(tempPath)
		return hashErr
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, apierr.CodeInternal, "hashing uploaded file", err)
	}
	if expectedHash != nil && *expectedHash != hash {
		_ = os.Remove(tempPath)
		return nil, apierr.New(apierr.KindValidation, apierr.CodeHashMismatch, "uploaded content does not match expected hash").
			WithDetails(map[string]any{"expected": *expectedHash, "actual": hash})
	}

	existing, err := s.store.GetAssetByHash(ctx, hash)
	if err != nil {
		return nil, apierr.Internal("checking for existing asset by hash", err)
	}
	if existing != nil {
		_ = os.Remove(tempPath)
		ref, _, err := s.registerByHash(ctx, *existing, name, tags, userMetadata, ownerID)
		if err != nil {
			return nil, err
		}
		return &UploadResult{Reference: *ref, Asset: *existing, Created: false}, nil
	}

	destDir, err := s.resolver.ResolveUploadDestination(tags)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, apierr.CodeInternal, "creating destination directory", err)
	}
	ext := filepath.Ext(clientFilename)
	if len(ext) > 16 {
		ext = ext[:16]
	}
	destPath := filepath.Join(destDir, hexDigest(hash)+ext)
	if err := moveFile(tempPath, destPath); err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, apierr.CodeInternal, "moving uploaded file into place", err)
	}

	mtime := fileMtimeNs(destPath)
	spec := ingest.Spec{
		AbsPath:          destPath,
		SizeBytes:        size,
		MtimeNs:          mtime,
		Name:             name,
		Tags:             tags,
		RelativeFilename: clientFilename,
		Metadata:         userMetadata,
		Hash:             &hash,
		OwnerID:          ownerID,
		TagOrigin:        model.TagOriginManual,
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, apierr.Internal("beginning upload transaction", err)
	}
	res, err := ingest.Run(ctx, tx, s.metrics, []ingest.Spec{spec})
	if err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("ingesting uploaded file", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal("committing upload", err)
	}
	if res.InsertedReferences == 0 {
		// The path we just wrote to lost the cache-state race to a prior
		// writer — extremely unlikely for a freshly minted destination path,
		// but handled the same way any other ingest loss is: register by
		// the now-existing asset instead of failing the upload.
		asset, err := s.store.GetAssetByHash(ctx, hash)
		if err != nil || asset == nil {
			return nil, apierr.Internal("resolving asset after lost upload race", err)
		}
		ref, _, err := s.registerByHash(ctx, *asset, name, tags, userMetadata, ownerID)
		if err != nil {
			return nil, err
		}
		return &UploadResult{Reference: *ref, Asset: *asset, Created: false}, nil
	}
	asset, err := s.store.GetAssetByHash(ctx, hash)
	if err != nil || asset == nil {
		return nil, apierr.Internal("reloading newly ingested asset", err)
	}
	fullRef, err := s.store.GetReferenceByAssetOwnerName(ctx, asset.ID, ownerID, name)
	if err != nil || fullRef == nil {
		return nil, apierr.Internal("reloading newly ingested reference", err)
	}
	return &UploadResult{Reference: *fullRef, Asset: *asset, Created: true}, nil
}

// CreateFromHash implements create_from_hash (spec §4.6): returns nil if the
// hash is unknown; otherwise the existing or newly created reference.
func (s *Service) CreateFromHash(ctx context.Context, hash, name string, tags []string, userMetadata []byte, ownerID string) (*UploadResult, error) {
	asset, err := s.store.GetAssetByHash(ctx, hash)
	if err != nil {
		return nil, apierr.Internal("looking up asset by hash", err)
	}
	if asset == nil {
		return nil, nil
	}
	ref, created, err := s.registerByHash(ctx, *asset, name, tags, userMetadata, ownerID)
	if err != nil {
		return nil, err
	}
	return &UploadResult{Reference: *ref, Asset: *asset, Created: created}, nil
}

// registerByHash implements the "register-by-hash" sub-procedure referenced
// from both upload_from_temp_path and create_from_hash (spec §4.6 step 2).
func (s *Service) registerByHash(ctx context.Context, asset model.Asset, name string, tags []string, userMetadata []byte, ownerID string) (*model.AssetReference, bool, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, false, apierr.Internal("beginning register-by-hash transaction", err)
	}
	existing, err := tx.GetReferenceByAssetOwnerName(ctx, asset.ID, ownerID, name)
	if err != nil {
		_ = tx.Rollback()
		return nil, false, apierr.Internal("checking for existing reference", err)
	}
	if existing != nil {
		_ = tx.Rollback()
		return existing, false, nil
	}
	refID := uuid.New()
	if err := tx.InsertReferencesIgnoreConflict(ctx, []store.ReferenceInsert{{
		ID: refID, AssetID: asset.ID, OwnerID: ownerID, Name: name, UserMetadata: userMetadata,
	}}); err != nil {
		_ = tx.Rollback()
		return nil, false, apierr.Internal("inserting reference", err)
	}
	landed, err := tx.GetAssetReferenceIDsByIDs(ctx, []uuid.UUID{refID})
	if err != nil {
		_ = tx.Rollback()
		return nil, false, apierr.Internal("checking landed reference", err)
	}
	if len(landed) == 0 {
		// Someone else created (asset_id, owner_id, name) concurrently; fetch
		// theirs instead of failing the caller.
		ref, err := tx.GetReferenceByAssetOwnerName(ctx, asset.ID, ownerID, name)
		if err != nil || ref == nil {
			_ = tx.Rollback()
			return nil, false, apierr.Internal("resolving concurrently created reference", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, apierr.Internal("committing register-by-hash", err)
		}
		return ref, false, nil
	}
	now := time.Now().UTC()
	if len(tags) > 0 {
		rows := make([]model.ReferenceTag, len(tags))
		for i, t := range tags {
			rows[i] = model.ReferenceTag{ReferenceID: refID, TagName: t, Origin: model.TagOriginManual, AddedAt: now}
		}
		if err := tx.InsertReferenceTags(ctx, rows); err != nil {
			_ = tx.Rollback()
			return nil, false, apierr.Internal("inserting reference tags", err)
		}
	}
	if len(userMetadata) > 0 {
		metaRows, err := metaproject.Project(refID, userMetadata)
		if err != nil {
			_ = tx.Rollback()
			return nil, false, apierr.Validation(apierr.CodeInvalidJSON, err.Error())
		}
		if err := tx.ReplaceReferenceMeta(ctx, refID, metaRows); err != nil {
			_ = tx.Rollback()
			return nil, false, apierr.Internal("projecting metadata", err)
		}
	}
	ref, err := tx.GetReferenceByID(ctx, refID)
	if err != nil || ref == nil {
		_ = tx.Rollback()
		return nil, false, apierr.Internal("reloading newly registered reference", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, apierr.Internal("committing register-by-hash", err)
	}
	return ref, true, nil
}

// AssetExists implements asset_exists(hash).
func (s *Service) AssetExists(ctx context.Context, hash string) (bool, error) {
	asset, err := s.store.GetAssetByHash(ctx, hash)
	if err != nil {
		return false, apierr.Internal("checking asset existence", err)
	}
	return asset != nil, nil
}

// ListAssetsPage implements list_assets_page (spec §4.6).
func (s *Service) ListAssetsPage(ctx context.Context, filter store.ListFilter) (model.Page[model.AssetListItem], error) {
	page, err := s.store.ListAssetsPage(ctx, filter)
	if err != nil {
		return model.Page[model.AssetListItem]{}, apierr.Internal("listing assets", err)
	}
	return page, nil
}

// GetAssetDetail implements get_asset_detail(id, owner_id) with ownership
// enforcement (spec §4.6, §7 — ownership mismatches are reported as
// not-found to avoid leaking existence).
func (s *Service) GetAssetDetail(ctx context.Context, id uuid.UUID, ownerID string) (*model.AssetDetail, error) {
	detail, err := s.store.GetAssetDetail(ctx, id)
	if err != nil {
		return nil, apierr.Internal("loading asset detail", err)
	}
	if detail == nil || !detail.Reference.VisibleTo(ownerID) {
		return nil, apierr.NotFound("asset reference not found")
	}
	return detail, nil
}

// UpdateAssetMetadataParams carries update_asset_metadata's optional fields.
type UpdateAssetMetadataParams struct {
	Name         *string
	Tags         []string // nil => unchanged; non-nil => full replace
	UserMetadata []byte
	HasMetadata  bool
}

// UpdateAssetMetadata implements update_asset_metadata (spec §4.6).
func (s *Service) UpdateAssetMetadata(ctx context.Context, id uuid.UUID, ownerID string, params UpdateAssetMetadataParams) (*model.AssetReference, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, apierr.Internal("beginning update transaction", err)
	}
	ref, err := tx.GetReferenceByID(ctx, id)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("loading reference", err)
	}
	if ref == nil || !ref.VisibleTo(ownerID) {
		_ = tx.Rollback()
		return nil, apierr.NotFound("asset reference not found")
	}
	if err := tx.UpdateReference(ctx, id, store.UpdateReferenceFields{
		Name: params.Name, UserMetadata: params.UserMetadata, HasMetadata: params.HasMetadata,
	}); err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("updating reference", err)
	}
	if params.HasMetadata {
		rows, err := metaproject.Project(id, params.UserMetadata)
		if err != nil {
			_ = tx.Rollback()
			return nil, apierr.Validation(apierr.CodeInvalidJSON, err.Error())
		}
		if err := tx.ReplaceReferenceMeta(ctx, id, rows); err != nil {
			_ = tx.Rollback()
			return nil, apierr.Internal("projecting metadata", err)
		}
	}
	if params.Tags != nil {
		if err := replaceAllTags(ctx, tx, id, params.Tags); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}
	updated, err := tx.GetReferenceByID(ctx, id)
	if err != nil || updated == nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("reloading updated reference", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal("committing update", err)
	}
	return updated, nil
}

func replaceAllTags(ctx context.Context, tx store.Tx, refID uuid.UUID, names []string) error {
	detail, err := tx.GetAssetDetail(ctx, refID)
	if err != nil {
		return apierr.Internal("loading current tags", err)
	}
	var current []string
	if detail != nil {
		for _, t := range detail.Tags {
			current = append(current, t.TagName)
		}
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var toRemove []string
	for _, n := range current {
		if !want[n] {
			toRemove = append(toRemove, n)
		}
	}
	if len(toRemove) > 0 {
		if _, _, err := tx.RemoveReferenceTags(ctx, refID, toRemove); err != nil {
			return apierr.Internal("removing tags", err)
		}
	}
	if _, _, err := tx.AddReferenceTags(ctx, refID, names, "user", model.TagOriginManual); err != nil {
		return apierr.Internal("adding tags", err)
	}
	return nil
}

// SetAssetPreview implements set_asset_preview (spec §4.6).
func (s *Service) SetAssetPreview(ctx context.Context, id uuid.UUID, ownerID string, previewID *uuid.UUID) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return apierr.Internal("beginning preview update transaction", err)
	}
	ref, err := tx.GetReferenceByID(ctx, id)
	if err != nil {
		_ = tx.Rollback()
		return apierr.Internal("loading reference", err)
	}
	if ref == nil || !ref.VisibleTo(ownerID) {
		_ = tx.Rollback()
		return apierr.NotFound("asset reference not found")
	}
	if err := tx.SetReferencePreview(ctx, id, previewID); err != nil {
		_ = tx.Rollback()
		return apierr.Internal("setting preview", err)
	}
	return tx.Commit()
}

// DeleteAssetReference implements delete_asset_reference (spec §4.6): when
// deleteContentIfOrphan is set and no other reference points at the asset,
// deletes the asset and best-effort removes each cache-state file after
// commit (filesystem failures are swallowed per spec §7 propagation policy).
func (s *Service) DeleteAssetReference(ctx context.Context, id uuid.UUID, ownerID string, deleteContentIfOrphan bool) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return apierr.Internal("beginning delete transaction", err)
	}
	ref, err := tx.GetReferenceByID(ctx, id)
	if err != nil {
		_ = tx.Rollback()
		return apierr.Internal("loading reference", err)
	}
	if ref == nil || !ref.VisibleTo(ownerID) {
		_ = tx.Rollback()
		return apierr.NotFound("asset reference not found")
	}
	assetID := ref.AssetID
	if err := tx.DeleteReference(ctx, id); err != nil {
		_ = tx.Rollback()
		return apierr.Internal("deleting reference", err)
	}
	var pathsToRemove []string
	if deleteContentIfOrphan {
		count, err := tx.CountReferencesForAsset(ctx, assetID)
		if err != nil {
			_ = tx.Rollback()
			return apierr.Internal("counting remaining references", err)
		}
		if count == 0 {
			states, err := tx.GetCacheStatesByAsset(ctx, assetID)
			if err != nil {
				_ = tx.Rollback()
				return apierr.Internal("loading cache states for orphan cleanup", err)
			}
			ids := make([]uuid.UUID, len(states))
			for i, st := range states {
				ids[i] = st.ID
				pathsToRemove = append(pathsToRemove, st.FilePath)
			}
			if len(ids) > 0 {
				if err := tx.DeleteCacheStates(ctx, ids); err != nil {
					_ = tx.Rollback()
					return apierr.Internal("deleting cache states", err)
				}
			}
			if err := tx.DeleteAssets(ctx, []uuid.UUID{assetID}); err != nil {
				_ = tx.Rollback()
				return apierr.Internal("deleting orphaned asset", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return apierr.Internal("committing delete", err)
	}
	for _, p := range pathsToRemove {
		_ = os.Remove(p)
	}
	return nil
}

// TagChangeResult reports apply_tags/remove_tags' bookkeeping (spec §4.6).
type TagChangeResult struct {
	Changed      []string
	AlreadyOrNot []string
	TotalTags    int64
}

// ApplyTags implements apply_tags.
func (s *Service) ApplyTags(ctx context.Context, id uuid.UUID, ownerID string, names []string) (*TagChangeResult, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, apierr.Internal("beginning tag transaction", err)
	}
	ref, err := tx.GetReferenceByID(ctx, id)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("loading reference", err)
	}
	if ref == nil || !ref.VisibleTo(ownerID) {
		_ = tx.Rollback()
		return nil, apierr.NotFound("asset reference not found")
	}
	added, already, err := tx.AddReferenceTags(ctx, id, names, "user", model.TagOriginManual)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("adding tags", err)
	}
	detail, err := tx.GetAssetDetail(ctx, id)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("reloading tags", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal("committing tag change", err)
	}
	total := int64(0)
	if detail != nil {
		total = int64(len(detail.Tags))
	}
	return &TagChangeResult{Changed: added, AlreadyOrNot: already, TotalTags: total}, nil
}

// RemoveTags implements remove_tags.
func (s *Service) RemoveTags(ctx context.Context, id uuid.UUID, ownerID string, names []string) (*TagChangeResult, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, apierr.Internal("beginning tag transaction", err)
	}
	ref, err := tx.GetReferenceByID(ctx, id)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("loading reference", err)
	}
	if ref == nil || !ref.VisibleTo(ownerID) {
		_ = tx.Rollback()
		return nil, apierr.NotFound("asset reference not found")
	}
	removed, notPresent, err := tx.RemoveReferenceTags(ctx, id, names)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("removing tags", err)
	}
	detail, err := tx.GetAssetDetail(ctx, id)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("reloading tags", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal("committing tag change", err)
	}
	total := int64(0)
	if detail != nil {
		total = int64(len(detail.Tags))
	}
	return &TagChangeResult{Changed: removed, AlreadyOrNot: notPresent, TotalTags: total}, nil
}

// ListTags implements list_tags.
func (s *Service) ListTags(ctx context.Context, filter store.TagFilter) ([]store.TagCount, int64, error) {
	tags, total, err := s.store.ListTags(ctx, filter)
	if err != nil {
		return nil, 0, apierr.Internal("listing tags", err)
	}
	return tags, total, nil
}

// DownloadInfo is resolve_asset_for_download's return shape (spec §4.6).
type DownloadInfo struct {
	Path         string
	ContentType  string
	DownloadName string
}

// ResolveAssetForDownload implements resolve_asset_for_download(id, owner_id):
// picks the best live path (prefer needs_verify=false and existing, fall back
// to first existing), updates last_access_time, and returns path/content-type/
// filename.
func (s *Service) ResolveAssetForDownload(ctx context.Context, id uuid.UUID, ownerID string) (*DownloadInfo, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, apierr.Internal("beginning download resolution transaction", err)
	}
	ref, err := tx.GetReferenceByID(ctx, id)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("loading reference", err)
	}
	if ref == nil || !ref.VisibleTo(ownerID) {
		_ = tx.Rollback()
		return nil, apierr.NotFound("asset reference not found")
	}
	states, err := tx.GetCacheStatesByAsset(ctx, ref.AssetID)
	if err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("loading cache states", err)
	}
	path, err := bestLivePath(states)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.TouchLastAccessTime(ctx, id, time.Now().UTC()); err != nil {
		_ = tx.Rollback()
		return nil, apierr.Internal("updating last access time", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal("committing download resolution", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &DownloadInfo{Path: path, ContentType: contentType, DownloadName: ref.Name + filepath.Ext(path)}, nil
}

func bestLivePath(states []model.CacheState) (string, error) {
	var fallback string
	for _, st := range states {
		if st.IsMissing {
			continue
		}
		if _, err := os.Stat(st.FilePath); err != nil {
			continue
		}
		if !st.NeedsVerify {
			return st.FilePath, nil
		}
		if fallback == "" {
			fallback = st.FilePath
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", apierr.New(apierr.KindNotFound, apierr.CodeFileNotFound, "no live path found for asset")
}

func hexDigest(canonical string) string {
	return strings.TrimPrefix(canonical, "blake3:")
}

func fileMtimeNs(path string) *int64 {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	n := info.ModTime().UnixNano()
	return &n
}

// moveFile renames src to dst, falling back to copy-then-remove across
// filesystem boundaries (os.Rename returns a LinkError for that case).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
