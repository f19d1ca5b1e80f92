package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/djhieudonald74-stack/asset-registry/internal/apierr"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
)

// handleListTags implements GET /api/tags (spec §6, §4.6 list_tags).
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TagFilter{
		PrefixFilter: q.Get("prefix"),
		HideZero:     q.Get("hide_zero") == "true",
		Order:        store.TagOrderCountDesc,
		Limit:        50,
	}
	if q.Get("order") == string(store.TagOrderNameAsc) {
		filter.Order = store.TagOrderNameAsc
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, apierr.Validation(apierr.CodeInvalidQuery, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, apierr.Validation(apierr.CodeInvalidQuery, "offset must be a non-negative integer"))
			return
		}
		filter.Offset = n
	}
	tags, total, err := s.svc.ListTags(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]tagCountDTO, len(tags))
	for i, t := range tags {
		dtos[i] = tagCountDTO{Name: t.Name, Type: t.Type, Count: t.Count}
	}
	httpJSON(w, http.StatusOK, struct {
		Tags  []tagCountDTO `json:"tags"`
		Total int64         `json:"total"`
	}{Tags: dtos, Total: total})
}

type tagChangeRequest struct {
	Tags []string `json:"tags"`
}

type tagChangeResponse struct {
	Changed      []string `json:"changed"`
	AlreadyOrNot []string `json:"already_present,omitempty"`
	TotalTags    int64    `json:"total_tags"`
}

// handleApplyTags implements POST /api/assets/{uuid}/tags.
func (s *Server) handleApplyTags(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r.PathValue("uuid"))
	if !ok {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidQuery, "malformed asset reference id"))
		return
	}
	var body tagChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidBody, "malformed JSON body"))
		return
	}
	result, err := s.svc.ApplyTags(r.Context(), id, s.ownerID(r), body.Tags)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpJSON(w, http.StatusOK, tagChangeResponse{Changed: result.Changed, AlreadyOrNot: result.AlreadyOrNot, TotalTags: result.TotalTags})
}

// handleRemoveTags implements DELETE /api/assets/{uuid}/tags.
func (s *Server) handleRemoveTags(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r.PathValue("uuid"))
	if !ok {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidQuery, "malformed asset reference id"))
		return
	}
	var body tagChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apierr.Validation(apierr.CodeInvalidBody, "malformed JSON body"))
		return
	}
	result, err := s.svc.RemoveTags(r.Context(), id, s.ownerID(r), body.Tags)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpJSON(w, http.StatusOK, tagChangeResponse{Changed: result.Changed, AlreadyOrNot: result.AlreadyOrNot, TotalTags: result.TotalTags})
}
