package scanner

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// sniffHeader inspects the first bytes of path for a recognized model-format
// preamble (spec §4.5 ENRICH: "optionally extract a tier-2 header, e.g. model
// format preamble"). It never returns an error: an unrecognized or unreadable
// header simply yields no mime type and no metadata, the way a best-effort
// enrichment pass should degrade.
//
// Grounded on SPEC_FULL.md §12's supplemental header-sniffing feature,
// recovered from original_source/'s safetensors/gguf header readers.
func sniffHeader(path string) (mime *string, metadata []byte) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".safetensors":
		return sniffSafetensors(path)
	case ".gguf":
		return sniffGGUF(path)
	default:
		return nil, nil
	}
}

func sniffSafetensors(path string) (*string, []byte) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil
	}
	defer f.Close()
	var headerLen uint64
	if err := binary.Read(f, binary.LittleEndian, &headerLen); err != nil {
		return nil, nil
	}
	const maxHeader = 64 * 1024 * 1024
	if headerLen == 0 || headerLen > maxHeader {
		return nil, nil
	}
	buf := make([]byte, headerLen)
	if _, err := f.Read(buf); err != nil {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, nil
	}
	meta := map[string]any{"format": "safetensors", "tensor_count": len(raw)}
	if meta2, ok := raw["__metadata__"]; ok {
		var m map[string]string
		if json.Unmarshal(meta2, &m) == nil {
			meta["header_metadata"] = m
		}
	}
	out, err := json.Marshal(meta)
	if err != nil {
		return nil, nil
	}
	mime := "application/x-safetensors"
	return &mime, out
}

const ggufMagic = 0x46554747 // "GGUF" little-endian

func sniffGGUF(path string) (*string, []byte) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil
	}
	defer f.Close()
	var magic uint32
	if err := binary.Read(f, binary.LittleEndian, &magic); err != nil || magic != ggufMagic {
		return nil, nil
	}
	var version uint32
	if err := binary.Read(f, binary.LittleEndian, &version); err != nil {
		return nil, nil
	}
	var tensorCount, kvCount uint64
	if err := binary.Read(f, binary.LittleEndian, &tensorCount); err != nil {
		return nil, nil
	}
	if err := binary.Read(f, binary.LittleEndian, &kvCount); err != nil {
		return nil, nil
	}
	meta := map[string]any{
		"format":       "gguf",
		"version":      version,
		"tensor_count": tensorCount,
		"kv_count":     kvCount,
	}
	out, err := json.Marshal(meta)
	if err != nil {
		return nil, nil
	}
	mime := "application/x-gguf"
	return &mime, out
}

// mergeMetadata shallow-merges fresh into existing's top-level JSON object,
// fresh taking precedence; a nil or invalid existing is treated as empty.
func mergeMetadata(existing, fresh []byte) []byte {
	merged := map[string]json.RawMessage{}
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &merged)
	}
	var freshMap map[string]json.RawMessage
	if json.Unmarshal(fresh, &freshMap) == nil {
		for k, v := range freshMap {
			merged[k] = v
		}
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return existing
	}
	return out
}
