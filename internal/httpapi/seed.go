package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/djhieudonald74-stack/asset-registry/internal/apierr"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/scanner"
)

type seedRequest struct {
	Phase             string   `json:"phase,omitempty"` // FAST|FULL|ENRICH, default FAST
	Roots             []string `json:"roots,omitempty"`
	EnrichTargetLevel *int     `json:"enrich_target_level,omitempty"`
}

// handleSeedStart implements POST /api/assets/seed?wait=true (spec §6): start
// FAST or FULL scan, 409 if a scan is already running, optionally blocking
// for completion when wait=true.
func (s *Server) handleSeedStart(w http.ResponseWriter, r *http.Request) {
	var body seedRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, apierr.Validation(apierr.CodeInvalidBody, "malformed JSON body"))
			return
		}
	}
	phase := scanner.PhaseFast
	switch body.Phase {
	case "", string(scanner.PhaseFast):
		phase = scanner.PhaseFast
	case string(scanner.PhaseFull):
		phase = scanner.PhaseFull
	case string(scanner.PhaseEnrich):
		phase = scanner.PhaseEnrich
	default:
		writeError(w, r, apierr.Validation(apierr.CodeInvalidBody, "phase must be FAST, FULL, or ENRICH"))
		return
	}
	roots := make([]model.Root, 0, len(body.Roots))
	for _, rt := range body.Roots {
		roots = append(roots, model.Root(rt))
	}
	if len(roots) == 0 {
		roots = []model.Root{model.RootModels, model.RootInput, model.RootOutput}
	}
	target := model.EnrichmentHashed
	if body.EnrichTargetLevel != nil {
		target = model.EnrichmentLevel(*body.EnrichTargetLevel)
	}

	// The scan outlives this request; detach from the request's cancellation
	// while keeping any context values (logger) it carries.
	bgCtx := context.WithoutCancel(r.Context())
	started := s.scanner.Start(bgCtx, scanner.Options{
		Phase:             phase,
		Roots:             roots,
		EnrichTargetLevel: target,
		OwnerID:           s.ownerID(r),
	})
	if !started {
		writeError(w, r, apierr.Conflict("a scan is already running"))
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		s.scanner.Wait(10 * time.Minute)
	}
	state, progress := s.scanner.Status()
	httpJSON(w, http.StatusAccepted, seedStatusDTO(state, progress))
}

// handleSeedStatus implements GET /api/assets/seed/status.
func (s *Server) handleSeedStatus(w http.ResponseWriter, r *http.Request) {
	state, progress := s.scanner.Status()
	httpJSON(w, http.StatusOK, seedStatusDTO(state, progress))
}

// handleSeedCancel implements POST /api/assets/seed/cancel (idempotent).
func (s *Server) handleSeedCancel(w http.ResponseWriter, r *http.Request) {
	s.scanner.Cancel()
	state, progress := s.scanner.Status()
	httpJSON(w, http.StatusOK, seedStatusDTO(state, progress))
}

// handleSeedHistory implements GET /api/assets/seed/history?limit= (SPEC_FULL
// §12 supplemental feature).
func (s *Server) handleSeedHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, apierr.Validation(apierr.CodeInvalidQuery, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	runs, err := s.store.ListScannerRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, apierr.Internal("listing scan history", err))
		return
	}
	dtos := make([]scannerRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toScannerRunDTO(run)
	}
	httpJSON(w, http.StatusOK, struct {
		Runs []scannerRunDTO `json:"runs"`
	}{Runs: dtos})
}

// handlePrune implements POST /api/assets/prune (spec §6): a mark-missing
// pass over cache states outside the configured roots; 409 if a scan is
// running (it shares the filesystem with the scanner's own reconcile pass).
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	if s.scanner.State() != scanner.StateIdle {
		writeError(w, r, apierr.Conflict("a scan is running"))
		return
	}
	marked, err := s.store.MarkCacheStatesMissingOutsidePrefixes(r.Context(), s.resolver.AllPrefixes())
	if err != nil {
		writeError(w, r, apierr.Internal("pruning cache states", err))
		return
	}
	httpJSON(w, http.StatusOK, struct {
		MarkedMissing int64 `json:"marked_missing"`
	}{MarkedMissing: marked})
}

type seedStatusBody struct {
	State    string      `json:"state"`
	Progress progressDTO `json:"progress"`
}

type progressDTO struct {
	Scanned int64    `json:"scanned"`
	Total   int64    `json:"total"`
	Created int64    `json:"created"`
	Skipped int64    `json:"skipped"`
	Errors  []string `json:"errors"`
}

func seedStatusDTO(state scanner.State, p scanner.Progress) seedStatusBody {
	errs := p.Errors
	if errs == nil {
		errs = []string{}
	}
	return seedStatusBody{
		State: string(state),
		Progress: progressDTO{
			Scanned: p.Scanned, Total: p.Total, Created: p.Created, Skipped: p.Skipped, Errors: errs,
		},
	}
}
