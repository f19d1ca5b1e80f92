package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/djhieudonald74-stack/asset-registry/internal/apierr"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
)

// listFilterFromQuery builds a store.ListFilter from GET /api/assets' query
// parameters (spec §6).
func listFilterFromQuery(q queryParams, ownerID string) (store.ListFilter, error) {
	filter := store.ListFilter{
		OwnerID:      ownerID,
		IncludeTags:  q.Values("include_tags[]"),
		ExcludeTags:  q.Values("exclude_tags[]"),
		NameContains: q.Get("name_contains"),
		Limit:        50,
		Sort:         store.SortCreatedAt,
		Order:        store.OrderDesc,
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, apierr.Validation(apierr.CodeInvalidQuery, "limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, apierr.Validation(apierr.CodeInvalidQuery, "offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	if s := q.Get("sort"); s != "" {
		switch store.SortField(s) {
		case store.SortName, store.SortCreatedAt, store.SortUpdatedAt, store.SortLastAccessTime, store.SortSize:
			filter.Sort = store.SortField(s)
		default:
			filter.Sort = store.SortCreatedAt
		}
	}
	if s := strings.ToLower(q.Get("order")); s == "asc" {
		filter.Order = store.OrderAsc
	}
	if s := q.Get("metadata_filter"); s != "" {
		parsed, err := parseMetadataFilter([]byte(s))
		if err != nil {
			return filter, apierr.Validation(apierr.CodeInvalidQuery, "metadata_filter: "+err.Error())
		}
		filter.MetadataFilter = parsed
	}
	return filter, nil
}

// parseMetadataFilter decodes `{key: value | [values...]}` into the typed
// representation ListFilter.MetadataFilter needs, per spec §4.6's
// metadata_filter grammar.
func parseMetadataFilter(raw []byte) (map[string][]model.MetaValue, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	out := make(map[string][]model.MetaValue, len(obj))
	for key, val := range obj {
		var arr []json.RawMessage
		if err := json.Unmarshal(val, &arr); err == nil && isJSONArray(val) {
			values := make([]model.MetaValue, len(arr))
			for i, elem := range arr {
				mv, err := scalarFilterValue(elem)
				if err != nil {
					return nil, err
				}
				values[i] = mv
			}
			out[key] = values
			continue
		}
		mv, err := scalarFilterValue(val)
		if err != nil {
			return nil, err
		}
		out[key] = []model.MetaValue{mv}
	}
	return out, nil
}

func isJSONArray(raw json.RawMessage) bool {
	for _, b := range raw {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		return b == '['
	}
	return false
}

func scalarFilterValue(raw json.RawMessage) (model.MetaValue, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.MetaValue{}, err
	}
	switch t := v.(type) {
	case nil:
		return model.MetaValue{Kind: model.MetaNull}, nil
	case bool:
		return model.MetaValue{Kind: model.MetaBool, Bool: t}, nil
	case string:
		return model.MetaValue{Kind: model.MetaStr, Str: t}, nil
	case float64:
		d, err := decimal.NewFromString(strconv.FormatFloat(t, 'f', -1, 64))
		if err != nil {
			return model.MetaValue{}, err
		}
		return model.MetaValue{Kind: model.MetaNum, Num: d}, nil
	default:
		return model.MetaValue{}, apierr.Validation(apierr.CodeInvalidQuery, "metadata filter values must be scalar")
	}
}

// queryParams is the minimal query-parameter accessor the filter builder
// needs, implemented by *http.Request's URL.Query() result.
type queryParams interface {
	Get(key string) string
	Values(key string) []string
}

type requestQuery struct{ r *http.Request }

func (q requestQuery) Get(key string) string      { return q.r.URL.Query().Get(key) }
func (q requestQuery) Values(key string) []string { return q.r.URL.Query()[key] }
