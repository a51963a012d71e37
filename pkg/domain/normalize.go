package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// legacyExcludedEntry is the pre-migration array element shape. Very old
// exports stored bare UUID strings; later ones stored objects without the
// uuid key repeated inside.
type legacyExcludedEntry struct {
	UUID   string `json:"uuid"`
	Reason string `json:"reason"`
}

// NormalizeExcluded upgrades a persisted excluded-members payload to the
// canonical map shape. It accepts the canonical map, the legacy object
// array, and the oldest bare-string array, and is executed exactly once at
// load time so no other code branches on shape. A nil or empty payload
// yields an empty map.
func NormalizeExcluded(raw json.RawMessage) (ExcludedMembers, error) {
	out := ExcludedMembers{}
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return out, nil
	}
	switch shape := jsonShape(raw); shape {
	case shapeObject:
		var m map[string]ExcludedMember
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode excluded members map: %w", err)
		}
		for uuid, ex := range m {
			ex.UUID = uuid
			out[uuid] = ex
		}
		return out, nil
	case shapeArray:
		var entries []legacyExcludedEntry
		if err := json.Unmarshal(raw, &entries); err == nil {
			for _, e := range entries {
				if e.UUID == "" {
					continue
				}
				out[e.UUID] = ExcludedMember{UUID: e.UUID, Reason: e.Reason}
			}
			return out, nil
		}
		var uuids []string
		if err := json.Unmarshal(raw, &uuids); err != nil {
			return nil, fmt.Errorf("decode legacy excluded members array: %w", err)
		}
		for _, uuid := range uuids {
			if uuid == "" {
				continue
			}
			out[uuid] = ExcludedMember{UUID: uuid}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("excluded members payload has unsupported shape %s", shape)
	}
}

type payloadShape string

const (
	shapeObject  payloadShape = "object"
	shapeArray   payloadShape = "array"
	shapeScalar  payloadShape = "scalar"
	shapeAbsent  payloadShape = "absent"
	shapeInvalid payloadShape = "invalid"
)

// jsonShape classifies a raw payload by its leading token without decoding it.
func jsonShape(raw json.RawMessage) payloadShape {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return shapeAbsent
	}
	switch trimmed[0] {
	case '{':
		return shapeObject
	case '[':
		return shapeArray
	case '"', 't', 'f', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return shapeScalar
	default:
		return shapeInvalid
	}
}
