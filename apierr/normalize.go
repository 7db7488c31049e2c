package apierr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// messageFields are probed in order on object payloads. First non-empty wins.
var messageFields = []string{"message", "error", "error_description", "detail", "title", "reason"}

// Normalize flattens an arbitrary decoded response body into a single error
// message. It accepts anything encoding/json can produce (string, bool,
// float64, json.Number, nil, []any, map[string]any) and never panics;
// unrecognizable input degrades to "" and the caller substitutes a default.
func Normalize(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case []any:
		return normalizeList(v)
	case map[string]any:
		return normalizeObject(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return rawDump(v)
	}
}

func normalizeList(items []any) string {
	if len(items) == 0 {
		return ""
	}
	if looksLikeValidationErrors(items) {
		return joinValidationErrors(items)
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s := Normalize(item); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "; ")
	}
	return rawDump(items)
}

func normalizeObject(obj map[string]any) string {
	if len(obj) == 0 {
		return ""
	}
	for _, field := range messageFields {
		val, ok := obj[field]
		if !ok {
			continue
		}
		// Probed fields may themselves be nested envelopes ({"error":
		// {"message": ...}} is a shape the backend actually emits).
		if s := Normalize(val); s != "" {
			return s
		}
	}
	if errsVal, ok := obj["errors"]; ok {
		switch errs := errsVal.(type) {
		case []any:
			if s := normalizeList(errs); s != "" {
				return s
			}
		case map[string]any:
			parts := make([]string, 0, len(errs))
			for _, v := range errs {
				if s := Normalize(v); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		}
	}
	return rawDump(obj)
}

// looksLikeValidationErrors reports whether every element is a field
// validation record in the FastAPI shape {loc: [...], msg: "..."}.
func looksLikeValidationErrors(items []any) bool {
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := rec["loc"].([]any); !ok {
			return false
		}
		if _, ok := rec["msg"].(string); !ok {
			return false
		}
	}
	return len(items) > 0
}

func joinValidationErrors(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		rec := item.(map[string]any)
		loc := rec["loc"].([]any)
		msg := rec["msg"].(string)
		segs := make([]string, 0, len(loc))
		for _, seg := range loc {
			segs = append(segs, normalizePathSegment(seg))
		}
		path := strings.Join(segs, ".")
		if path == "" {
			parts = append(parts, msg)
		} else {
			parts = append(parts, path+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}

func normalizePathSegment(seg any) string {
	switch s := seg.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// rawDump is the last-resort textual rendering for structures with no
// recognizable message field.
func rawDump(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(b)
	if s == "null" || s == "{}" || s == "[]" {
		return ""
	}
	return s
}
