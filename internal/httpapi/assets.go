package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/djhieudonald74-stack/asset-registry/internal/apierr"
	"github.com/djhieudonald74-stack/asset-registry/internal/assetsvc"
	"github.com/djhieudonald74-stack/asset-registry/internal/hashing"
)

// handleHashExists implements HEAD /api/assets/hash/{hash} (spec §6).
func (s *Server) handleHashExists(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if err := hashing.Validate(hash); err != nil {
		writeError(w, r, err)
		return
	}
	exists, err := s.svc.AssetExists(r.Context(), hash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleListAssets implements GET /api/assets (spec §6, §4.6 list_assets_page).
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilterFromQuery(requestQuery{r}, s.ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.svc.ListAssetsPage(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpJSON(w, http.StatusOK, toPageDTO(page))
}

// handleGetAssetDetail implements GET /api/assets/{uuid}.
func (s *Server) handleGetAssetDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r.PathValue("uuid"))
	if !ok {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidQuery, "malformed asset reference id"))
		return
	}
	detail, err := s.svc.GetAssetDetail(r.Context(), id, s.ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpJSON(w, http.StatusOK, toAssetDetailDTO(*detail))
}

// handleDownload implements GET /api/assets/{uuid}/content (spec §6): streams
// bytes with a Content-Disposition header carrying both an ASCII fallback
// filename and a filename*=UTF-8'' form.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r.PathValue("uuid"))
	if !ok {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidQuery, "malformed asset reference id"))
		return
	}
	info, err := s.svc.ResolveAssetForDownload(r.Context(), id, s.ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := os.Open(info.Path)
	if err != nil {
		writeError(w, r, apierr.Wrap(apierr.KindNotFound, apierr.CodeFileNotFound, "asset content not found on disk", err))
		return
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		writeError(w, r, apierr.Internal("statting asset content", err))
		return
	}

	disposition := r.URL.Query().Get("disposition")
	if disposition != "attachment" {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", stat.Size()))
	w.Header().Set("Content-Disposition", contentDisposition(disposition, info.DownloadName))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

// contentDisposition builds a header value with an ASCII-safe fallback and
// the RFC 5987 filename* extension, per spec §6.
func contentDisposition(kind, filename string) string {
	ascii := asciiFallback(filename)
	encoded := url.PathEscape(filename)
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`, kind, ascii, encoded)
}

func asciiFallback(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || r > 0x7e || r == '"' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" {
		return "download"
	}
	return out
}

type uploadFromHashRequest struct {
	Hash         string          `json:"hash"`
	Name         string          `json:"name"`
	Tags         []string        `json:"tags,omitempty"`
	UserMetadata json.RawMessage `json:"user_metadata,omitempty"`
}

// handleCreateFromHash implements POST /api/assets/from-hash (spec §6).
func (s *Server) handleCreateFromHash(w http.ResponseWriter, r *http.Request) {
	var body uploadFromHashRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidBody, "malformed JSON body"))
		return
	}
	if err := hashing.Validate(body.Hash); err != nil {
		writeError(w, r, err)
		return
	}
	if body.Name == "" {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidBody, "name is required"))
		return
	}
	result, err := s.svc.CreateFromHash(r.Context(), body.Hash, body.Name, body.Tags, body.UserMetadata, s.ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result == nil {
		writeError(w, r, apierr.NotFound("no asset with that hash exists"))
		return
	}
	httpJSON(w, http.StatusCreated, uploadResultDTO(result))
}

// handleUpload implements POST /api/assets: a multipart upload with fields
// file, name, tags (JSON array), user_metadata (JSON), hash (optional).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	const maxUploadMemory = 32 << 20
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidBody, "malformed multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidBody, "file field is required"))
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			writeError(w, r, apierr.Validation(apierr.CodeInvalidBody, "tags must be a JSON array of strings"))
			return
		}
	}
	var userMetadata json.RawMessage
	if raw := r.FormValue("user_metadata"); raw != "" {
		if !json.Valid([]byte(raw)) {
			writeError(w, r, apierr.Validation(apierr.CodeInvalidJSON, "user_metadata is not valid JSON"))
			return
		}
		userMetadata = json.RawMessage(raw)
	}
	var expectedHash *string
	if raw := r.FormValue("hash"); raw != "" {
		if err := hashing.Validate(raw); err != nil {
			writeError(w, r, err)
			return
		}
		expectedHash = &raw
	}

	tempPath, err := spoolToTemp(s.uploadDir, file)
	if err != nil {
		writeError(w, r, apierr.Wrap(apierr.KindTransient, apierr.CodeInternal, "spooling upload to temp file", err))
		return
	}

	result, err := s.svc.UploadFromTempPath(r.Context(), tempPath, name, tags, userMetadata, header.Filename, s.ownerID(r), expectedHash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httpJSON(w, status, uploadResultDTO(result))
}

func spoolToTemp(dir string, r io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

type uploadResultBody struct {
	Reference referenceDTO `json:"reference"`
	Asset     assetDTO     `json:"asset"`
	Created   bool         `json:"created"`
}

func uploadResultDTO(res *assetsvc.UploadResult) uploadResultBody {
	return uploadResultBody{
		Reference: toReferenceDTO(res.Reference),
		Asset:     toAssetDTO(res.Asset),
		Created:   res.Created,
	}
}

type updateAssetRequest struct {
	Name         *string         `json:"name,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	UserMetadata json.RawMessage `json:"user_metadata,omitempty"`
}

// handleUpdateAsset implements PUT /api/assets/{uuid} (spec §6).
func (s *Server) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r.PathValue("uuid"))
	if !ok {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidQuery, "malformed asset reference id"))
		return
	}
	var body updateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidBody, "malformed JSON body"))
		return
	}
	params := assetsvc.UpdateAssetMetadataParams{Name: body.Name, Tags: body.Tags}
	if body.UserMetadata != nil {
		params.HasMetadata = true
		params.UserMetadata = body.UserMetadata
	}
	ref, err := s.svc.UpdateAssetMetadata(r.Context(), id, s.ownerID(r), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpJSON(w, http.StatusOK, toReferenceDTO(*ref))
}

// handleDeleteAsset implements DELETE /api/assets/{uuid}?delete_content=true|false.
func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r.PathValue("uuid"))
	if !ok {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidQuery, "malformed asset reference id"))
		return
	}
	deleteContent := r.URL.Query().Get("delete_content") == "true"
	if err := s.svc.DeleteAssetReference(r.Context(), id, s.ownerID(r), deleteContent); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
