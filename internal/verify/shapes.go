package verify

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The remote contract is loosely specified: the verdict rows may arrive as a
// top-level array or nested under a couple of known field names, and each
// row may use any of several synonymous fields for the reachability flag.
// Each recognizer is a pure function over the raw body; the first one that
// yields rows wins.

// verdictRow is one parsed row: the echoed query value and its flag.
type verdictRow struct {
	echo      string
	reachable bool
}

type shapeRecognizer func(data []byte) []verdictRow

var recognizers = []shapeRecognizer{
	topLevelList,
	nestedList("data"),
	nestedList("numbers"),
}

// parseVerdicts decodes a response body using the first recognizer whose
// shape matches. A matched shape with zero rows returns an empty non-nil
// slice: an empty verdict list is a valid reply, not a malformed one. Returns
// nil only when no known shape matches.
func parseVerdicts(data []byte) []verdictRow {
	for _, rec := range recognizers {
		if rows := rec(data); rows != nil {
			return rows
		}
	}
	return nil
}

func topLevelList(data []byte) []verdictRow {
	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err != nil || arr == nil {
		return nil
	}
	return rowsFrom(arr)
}

func nestedList(field string) shapeRecognizer {
	return func(data []byte) []verdictRow {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil
		}
		raw, ok := obj[field]
		if !ok {
			return nil
		}
		var arr []map[string]any
		if err := json.Unmarshal(raw, &arr); err != nil || arr == nil {
			return nil
		}
		return rowsFrom(arr)
	}
}

var (
	echoFields      = []string{"query", "number"}
	reachableFields = []string{"isInWhatsapp", "is_whatsapp", "valid", "exists"}
)

func rowsFrom(arr []map[string]any) []verdictRow {
	rows := make([]verdictRow, 0, len(arr))
	for _, m := range arr {
		echo := ""
		for _, f := range echoFields {
			if v, ok := m[f]; ok {
				if s := stringify(v); s != "" {
					echo = s
					break
				}
			}
		}
		if echo == "" {
			continue
		}

		reachable := false
		for _, f := range reachableFields {
			if v, ok := m[f]; ok && truthy(v) {
				reachable = true
				break
			}
		}
		rows = append(rows, verdictRow{echo: echo, reachable: reachable})
	}
	return rows
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	case float64:
		return t != 0
	default:
		return false
	}
}
