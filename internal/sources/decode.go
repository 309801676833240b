package sources

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/thv-confd/internal/config"
)

// FormatFromPath infers the document format from the file extension, defaulting to JSON
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return config.FormatYAML
	case ".toml":
		return config.FormatTOML
	case ".hujson", ".jsonc":
		return config.FormatHuJSON
	default:
		return config.FormatJSON
	}
}

// Decode parses a document into a normalized mapping.
// Documents whose top level is not a mapping are wrapped as {"value": ...}.
func Decode(data []byte, format string) (map[string]any, error) {
	var (
		doc any
		err error
	)

	switch format {
	case "", config.FormatJSON:
		doc, err = decodeJSON(data)
	case config.FormatHuJSON:
		var standard []byte
		standard, err = hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hujson: %w", err)
		}
		doc, err = decodeJSON(standard)
	case config.FormatYAML:
		err = yaml.Unmarshal(data, &doc)
		if err != nil {
			err = fmt.Errorf("failed to parse yaml: %w", err)
		}
	case config.FormatTOML:
		var table map[string]any
		err = toml.Unmarshal(data, &table)
		if err != nil {
			err = fmt.Errorf("failed to parse toml: %w", err)
		}
		doc = table
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	return asMapping(Normalize(doc)), nil
}

func decodeJSON(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to parse json: unexpected data after top-level value")
	}
	return doc, nil
}

// asMapping returns doc as a mapping, wrapping scalars and lists
func asMapping(doc any) map[string]any {
	switch v := doc.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	default:
		return map[string]any{"value": v}
	}
}

// Normalize converts decoder specific representations into plain Go values:
// mapping keys become strings, json.Number and sized integers become int64
// (or float64 when not integral) and nested values are normalized recursively.
func Normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = Normalize(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint:
		return normalizeUint(uint64(val))
	case uint64:
		return normalizeUint(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

func normalizeUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return float64(u)
}

// NormalizeMap normalizes every value of m
func NormalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out, _ := Normalize(m).(map[string]any)
	return out
}
