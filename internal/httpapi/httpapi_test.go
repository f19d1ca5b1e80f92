package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/djhieudonald74-stack/asset-registry/internal/assetsvc"
	"github.com/djhieudonald74-stack/asset-registry/internal/folders"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/scanner"
	"github.com/djhieudonald74-stack/asset-registry/internal/store/sqlstore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := sqlstore.OpenSQLite(context.Background(), ":memory:", 800)
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	resolver := folders.New(map[model.Root][]string{model.RootModels: {t.TempDir()}})
	svc := assetsvc.New(st, resolver, 4, nil)
	sup := scanner.New(st, resolver, nil, 4, 0, nil)
	return NewServer(svc, sup, st, resolver, HeaderAuth{}, t.TempDir())
}

func uploadMultipart(t *testing.T, srv *Server, ownerID, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("name", name); err != nil {
		t.Fatalf("WriteField(name): %v", err)
	}
	if err := mw.WriteField("tags", `["models"]`); err != nil {
		t.Fatalf("WriteField(tags): %v", err)
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("writing file part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/assets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if ownerID != "" {
		req.Header.Set("X-Owner-Id", ownerID)
	}
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)
	return rec
}

func TestUploadCreatesThenDedupes(t *testing.T) {
	srv := newTestServer(t)

	first := uploadMultipart(t, srv, "u1", "model.safetensors", "same bytes")
	if first.Code != http.StatusCreated {
		t.Fatalf("first upload status = %d, want 201, body=%s", first.Code, first.Body.String())
	}
	var firstBody uploadResultBody
	if err := json.Unmarshal(first.Body.Bytes(), &firstBody); err != nil {
		t.Fatalf("decoding first response: %v", err)
	}
	if !firstBody.Created {
		t.Error("first upload Created = false, want true")
	}

	second := uploadMultipart(t, srv, "u1", "model-again.safetensors", "same bytes")
	if second.Code != http.StatusOK {
		t.Fatalf("second upload status = %d, want 200 (dedupe), body=%s", second.Code, second.Body.String())
	}
	var secondBody uploadResultBody
	if err := json.Unmarshal(second.Body.Bytes(), &secondBody); err != nil {
		t.Fatalf("decoding second response: %v", err)
	}
	if secondBody.Created {
		t.Error("second upload Created = true, want false (same hash, new name)")
	}
	if secondBody.Asset.Hash == nil || firstBody.Asset.Hash == nil || *secondBody.Asset.Hash != *firstBody.Asset.Hash {
		t.Errorf("hashes differ across identical content: %+v vs %+v", firstBody.Asset, secondBody.Asset)
	}
}

func TestHashExistsHeadRoute(t *testing.T) {
	srv := newTestServer(t)
	uploadMultipart(t, srv, "u1", "known.safetensors", "known content")

	hashRec := httptest.NewRecorder()
	listReq := httptest.NewRequest(http.MethodGet, "/api/assets?limit=1", nil)
	listReq.Header.Set("X-Owner-Id", "u1")
	srv.Mux().ServeHTTP(hashRec, listReq)
	var page pageDTO
	if err := json.Unmarshal(hashRec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("listed %d items, want 1", len(page.Items))
	}
	hash := *page.Items[0].Asset.Hash

	okRec := httptest.NewRecorder()
	okReq := httptest.NewRequest(http.MethodHead, "/api/assets/hash/"+hash, nil)
	srv.Mux().ServeHTTP(okRec, okReq)
	if okRec.Code != http.StatusOK {
		t.Errorf("HEAD for known hash = %d, want 200", okRec.Code)
	}

	missingHash := "blake3:" + bytesRepeat("0", 64)
	missRec := httptest.NewRecorder()
	missReq := httptest.NewRequest(http.MethodHead, "/api/assets/hash/"+missingHash, nil)
	srv.Mux().ServeHTTP(missRec, missReq)
	if missRec.Code != http.StatusNotFound {
		t.Errorf("HEAD for unknown hash = %d, want 404", missRec.Code)
	}

	badRec := httptest.NewRecorder()
	badReq := httptest.NewRequest(http.MethodHead, "/api/assets/hash/not-a-hash", nil)
	srv.Mux().ServeHTTP(badRec, badReq)
	if badRec.Code != http.StatusBadRequest {
		t.Errorf("HEAD for malformed hash = %d, want 400", badRec.Code)
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(badRec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if envelope.Error.Code == "" {
		t.Error("error envelope Code is empty, want a populated apierr code")
	}
}

func TestGetAssetDetailNotFoundForOtherOwner(t *testing.T) {
	srv := newTestServer(t)
	uploadMultipart(t, srv, "u1", "private.safetensors", "private content")

	listRec := httptest.NewRecorder()
	listReq := httptest.NewRequest(http.MethodGet, "/api/assets?limit=1", nil)
	listReq.Header.Set("X-Owner-Id", "u1")
	srv.Mux().ServeHTTP(listRec, listReq)
	var page pageDTO
	if err := json.Unmarshal(listRec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	refID := page.Items[0].Reference.ID

	ownerRec := httptest.NewRecorder()
	ownerReq := httptest.NewRequest(http.MethodGet, "/api/assets/"+refID, nil)
	ownerReq.Header.Set("X-Owner-Id", "u1")
	srv.Mux().ServeHTTP(ownerRec, ownerReq)
	if ownerRec.Code != http.StatusOK {
		t.Errorf("owner GetAssetDetail = %d, want 200, body=%s", ownerRec.Code, ownerRec.Body.String())
	}

	strangerRec := httptest.NewRecorder()
	strangerReq := httptest.NewRequest(http.MethodGet, "/api/assets/"+refID, nil)
	strangerReq.Header.Set("X-Owner-Id", "u2")
	srv.Mux().ServeHTTP(strangerRec, strangerReq)
	if strangerRec.Code != http.StatusNotFound {
		t.Errorf("stranger GetAssetDetail = %d, want 404", strangerRec.Code)
	}
}

func TestApplyAndRemoveTagsRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	uploadMultipart(t, srv, "u1", "taggable.safetensors", "taggable content")

	listRec := httptest.NewRecorder()
	listReq := httptest.NewRequest(http.MethodGet, "/api/assets?limit=1", nil)
	listReq.Header.Set("X-Owner-Id", "u1")
	srv.Mux().ServeHTTP(listRec, listReq)
	var page pageDTO
	if err := json.Unmarshal(listRec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	refID := page.Items[0].Reference.ID

	applyBody, _ := json.Marshal(tagChangeRequest{Tags: []string{"sdxl", "checkpoint"}})
	applyRec := httptest.NewRecorder()
	applyReq := httptest.NewRequest(http.MethodPost, "/api/assets/"+refID+"/tags", bytes.NewReader(applyBody))
	applyReq.Header.Set("X-Owner-Id", "u1")
	srv.Mux().ServeHTTP(applyRec, applyReq)
	if applyRec.Code != http.StatusOK {
		t.Fatalf("apply tags status = %d, want 200, body=%s", applyRec.Code, applyRec.Body.String())
	}
	var applied tagChangeResponse
	if err := json.Unmarshal(applyRec.Body.Bytes(), &applied); err != nil {
		t.Fatalf("decoding apply response: %v", err)
	}
	if applied.TotalTags != 3 {
		t.Errorf("TotalTags after apply = %d, want 3 (upload's models tag plus two applied)", applied.TotalTags)
	}

	removeBody, _ := json.Marshal(tagChangeRequest{Tags: []string{"sdxl"}})
	removeRec := httptest.NewRecorder()
	removeReq := httptest.NewRequest(http.MethodDelete, "/api/assets/"+refID+"/tags", bytes.NewReader(removeBody))
	removeReq.Header.Set("X-Owner-Id", "u1")
	srv.Mux().ServeHTTP(removeRec, removeReq)
	if removeRec.Code != http.StatusOK {
		t.Fatalf("remove tags status = %d, want 200, body=%s", removeRec.Code, removeRec.Body.String())
	}
	var removed tagChangeResponse
	if err := json.Unmarshal(removeRec.Body.Bytes(), &removed); err != nil {
		t.Fatalf("decoding remove response: %v", err)
	}
	if removed.TotalTags != 2 {
		t.Errorf("TotalTags after remove = %d, want 2", removed.TotalTags)
	}
}

func TestSeedStartStatusAndCancel(t *testing.T) {
	srv := newTestServer(t)

	startRec := httptest.NewRecorder()
	startReq := httptest.NewRequest(http.MethodPost, "/api/assets/seed", bytes.NewReader([]byte(`{"roots":["models"]}`)))
	srv.Mux().ServeHTTP(startRec, startReq)
	if startRec.Code != http.StatusAccepted {
		t.Fatalf("seed start status = %d, want 202, body=%s", startRec.Code, startRec.Body.String())
	}

	conflictRec := httptest.NewRecorder()
	conflictReq := httptest.NewRequest(http.MethodPost, "/api/assets/seed", bytes.NewReader([]byte(`{}`)))
	srv.Mux().ServeHTTP(conflictRec, conflictReq)
	if conflictRec.Code != http.StatusAccepted && conflictRec.Code != http.StatusConflict {
		t.Errorf("second concurrent seed start = %d, want 202 (first already finished) or 409 (still running)", conflictRec.Code)
	}

	if !srv.scanner.Wait(5 * time.Second) {
		t.Fatal("scanner did not reach IDLE within the timeout")
	}

	statusRec := httptest.NewRecorder()
	statusReq := httptest.NewRequest(http.MethodGet, "/api/assets/seed/status", nil)
	srv.Mux().ServeHTTP(statusRec, statusReq)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("seed status = %d, want 200", statusRec.Code)
	}

	cancelRec := httptest.NewRecorder()
	cancelReq := httptest.NewRequest(http.MethodPost, "/api/assets/seed/cancel", nil)
	srv.Mux().ServeHTTP(cancelRec, cancelReq)
	if cancelRec.Code != http.StatusOK {
		t.Errorf("seed cancel (idempotent, no scan running) = %d, want 200", cancelRec.Code)
	}
}

func TestHealthzAndReadyz(t *testing.T) {
	srv := newTestServer(t)

	healthRec := httptest.NewRecorder()
	healthReq := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Mux().ServeHTTP(healthRec, healthReq)
	if healthRec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", healthRec.Code)
	}

	readyRec := httptest.NewRecorder()
	readyReq := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	srv.Mux().ServeHTTP(readyRec, readyReq)
	if readyRec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", readyRec.Code)
	}
}

func TestDeleteAssetReference(t *testing.T) {
	srv := newTestServer(t)
	uploadMultipart(t, srv, "u1", "deleteme.safetensors", "delete me content")

	listRec := httptest.NewRecorder()
	listReq := httptest.NewRequest(http.MethodGet, "/api/assets?limit=1", nil)
	listReq.Header.Set("X-Owner-Id", "u1")
	srv.Mux().ServeHTTP(listRec, listReq)
	var page pageDTO
	if err := json.Unmarshal(listRec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	refID := page.Items[0].Reference.ID

	delRec := httptest.NewRecorder()
	delReq := httptest.NewRequest(http.MethodDelete, "/api/assets/"+refID, nil)
	delReq.Header.Set("X-Owner-Id", "u1")
	srv.Mux().ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204, body=%s", delRec.Code, delRec.Body.String())
	}

	getRec := httptest.NewRecorder()
	getReq := httptest.NewRequest(http.MethodGet, "/api/assets/"+refID, nil)
	getReq.Header.Set("X-Owner-Id", "u1")
	srv.Mux().ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", getRec.Code)
	}
}

func bytesRepeat(s string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = s[0]
	}
	return string(b)
}
