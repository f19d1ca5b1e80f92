// Package metaproject implements C7: projecting the opaque user_metadata JSON
// document carried by an AssetReference into typed ReferenceMeta rows so the
// store can filter on values without parsing JSON at query time.
//
// Grounded on the teacher's use of a single typed-variant pattern for
// heterogeneous values (the same shape the Dolt backend uses when reading
// back SQL column types into Go), applied here to JSON scalars instead of SQL
// column types.
package metaproject

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/djhieudonald74-stack/asset-registry/internal/model"
)

// Project parses raw (a JSON object) and returns its ReferenceMeta rows, per
// spec §4.7's projection rules: one row for each top-level key holding a scalar
// or an object, and one row per element for a key holding a list. A nil or
// empty raw value projects to no rows. Non-object top-level JSON returns an
// error.
func Project(referenceID uuid.UUID, raw []byte) ([]model.ReferenceMeta, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("metaproject: user_metadata is not a JSON object: %w", err)
	}
	var rows []model.ReferenceMeta
	for key, rawVal := range obj {
		keyRows, err := projectValue(referenceID, key, rawVal)
		if err != nil {
			return nil, fmt.Errorf("metaproject: projecting key %q: %w", key, err)
		}
		rows = append(rows, keyRows...)
	}
	return rows, nil
}

func projectValue(referenceID uuid.UUID, key string, raw json.RawMessage) ([]model.ReferenceMeta, error) {
	if t := trimSpace(raw); len(t) > 0 && t[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return projectList(referenceID, key, list)
	}
	v, ok, err := scalarValue(raw)
	if err != nil {
		return nil, err
	}
	if ok {
		return []model.ReferenceMeta{{ReferenceID: referenceID, Key: key, Ordinal: 0, Value: v}}, nil
	}
	// Object: val_json carries the raw document verbatim.
	return []model.ReferenceMeta{{ReferenceID: referenceID, Key: key, Ordinal: 0, Value: model.MetaValue{Kind: model.MetaJSON, JSON: append([]byte(nil), raw...)}}}, nil
}

// projectList handles a JSON array: scalars-only lists get one typed row per
// element; any non-scalar element demotes the whole element to val_json
// (spec: "any other value... for a non-scalar list, one row per element").
func projectList(referenceID uuid.UUID, key string, elems []json.RawMessage) ([]model.ReferenceMeta, error) {
	rows := make([]model.ReferenceMeta, len(elems))
	for i, elem := range elems {
		v, ok, err := scalarValue(elem)
		if err != nil {
			return nil, err
		}
		if !ok {
			v = model.MetaValue{Kind: model.MetaJSON, JSON: append([]byte(nil), elem...)}
		}
		rows[i] = model.ReferenceMeta{ReferenceID: referenceID, Key: key, Ordinal: i, Value: v}
	}
	return rows, nil
}

// scalarValue decodes raw as a JSON scalar (null, bool, number, string). The
// second return is false when raw is an object (the only remaining case once
// array has already been ruled out by the caller).
func scalarValue(raw json.RawMessage) (model.MetaValue, bool, error) {
	trimmed := trimSpace(raw)
	if len(trimmed) == 0 {
		return model.MetaValue{}, false, fmt.Errorf("empty JSON value")
	}
	switch trimmed[0] {
	case 'n':
		return model.MetaValue{Kind: model.MetaNull}, true, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return model.MetaValue{}, false, err
		}
		return model.MetaValue{Kind: model.MetaBool, Bool: b}, true, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return model.MetaValue{}, false, err
		}
		return model.MetaValue{Kind: model.MetaStr, Str: s}, true, nil
	case '{':
		return model.MetaValue{}, false, nil
	case '[':
		return model.MetaValue{}, false, fmt.Errorf("scalarValue called on an array")
	default:
		d, err := decimal.NewFromString(string(trimmed))
		if err != nil {
			return model.MetaValue{}, false, fmt.Errorf("decoding numeric value: %w", err)
		}
		return model.MetaValue{Kind: model.MetaNum, Num: d}, true, nil
	}
}

func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && isJSONSpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isJSONSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// ToJSONValue renders a MetaValue back to a json.RawMessage, the inverse used
// when reassembling a reference's metadata document for the HTTP surface from
// stored projection rows (used by tests and by any caller that reconstructs a
// document from ReferenceMeta rows rather than the stored user_metadata blob).
func ToJSONValue(v model.MetaValue) (json.RawMessage, error) {
	switch v.Kind {
	case model.MetaNull:
		return json.RawMessage("null"), nil
	case model.MetaBool:
		if v.Bool {
			return json.RawMessage("true"), nil
		}
		return json.RawMessage("false"), nil
	case model.MetaNum:
		return json.RawMessage(v.Num.String()), nil
	case model.MetaStr:
		return json.Marshal(v.Str)
	case model.MetaJSON:
		return json.RawMessage(v.JSON), nil
	default:
		return nil, fmt.Errorf("metaproject: unknown MetaValueKind %d", v.Kind)
	}
}
