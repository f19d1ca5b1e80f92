package httpapi

import (
	"net/http"

	"github.com/djhieudonald74-stack/asset-registry/internal/assetsvc"
	"github.com/djhieudonald74-stack/asset-registry/internal/folders"
	"github.com/djhieudonald74-stack/asset-registry/internal/scanner"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
)

// Server holds the collaborators every handler needs, grounded on the
// teacher's buildWebMux closing over a *rpc.Client and a storage.Storage.
type Server struct {
	svc       *assetsvc.Service
	scanner   *scanner.Supervisor
	store     store.Store
	resolver  *folders.Resolver
	auth      Auth
	uploadDir string
}

// NewServer constructs the HTTP surface's dependency bundle.
func NewServer(svc *assetsvc.Service, sup *scanner.Supervisor, st store.Store, resolver *folders.Resolver, auth Auth, uploadDir string) *Server {
	if auth == nil {
		auth = HeaderAuth{}
	}
	return &Server{svc: svc, scanner: sup, store: st, resolver: resolver, auth: auth, uploadDir: uploadDir}
}

// Mux builds the routed *http.ServeMux (spec §6's table, plus the SPEC_FULL
// §12/§6-ADD operability endpoints).
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("HEAD /api/assets/hash/{hash}", s.handleHashExists)
	mux.HandleFunc("GET /api/assets", s.handleListAssets)
	mux.HandleFunc("GET /api/assets/{uuid}", s.handleGetAssetDetail)
	mux.HandleFunc("GET /api/assets/{uuid}/content", s.handleDownload)
	mux.HandleFunc("POST /api/assets", s.handleUpload)
	mux.HandleFunc("POST /api/assets/from-hash", s.handleCreateFromHash)
	mux.HandleFunc("PUT /api/assets/{uuid}", s.handleUpdateAsset)
	mux.HandleFunc("DELETE /api/assets/{uuid}", s.handleDeleteAsset)
	mux.HandleFunc("GET /api/tags", s.handleListTags)
	mux.HandleFunc("POST /api/assets/{uuid}/tags", s.handleApplyTags)
	mux.HandleFunc("DELETE /api/assets/{uuid}/tags", s.handleRemoveTags)
	mux.HandleFunc("POST /api/assets/seed", s.handleSeedStart)
	mux.HandleFunc("GET /api/assets/seed/status", s.handleSeedStatus)
	mux.HandleFunc("POST /api/assets/seed/cancel", s.handleSeedCancel)
	mux.HandleFunc("GET /api/assets/seed/history", s.handleSeedHistory)
	mux.HandleFunc("POST /api/assets/prune", s.handlePrune)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", metricsHandler())

	return mux
}

func (s *Server) ownerID(r *http.Request) string {
	return s.auth.OwnerID(r)
}

func uuidParam(r *http.Request) (idStr string, ok bool) {
	idStr = r.PathValue("uuid")
	return idStr, idStr != ""
}
