package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Context tags the origin of a fix.
type Context string

const (
	ContextBackgroundFetch Context = "background-fetch"
	ContextVisitEntry      Context = "visit-entry"
	ContextVisitExit       Context = "visit-exit"
	ContextGeofenceEntry   Context = "geofence-entry"
	ContextGeofenceExit    Context = "geofence-exit"
	ContextPassive         Context = "passive"
	ContextUnknown         Context = "unknown"
)

// ParseContext maps a tag string to a known Context, falling back to
// ContextUnknown for anything unrecognized.
func ParseContext(s string) Context {
	switch Context(s) {
	case ContextBackgroundFetch, ContextVisitEntry, ContextVisitExit,
		ContextGeofenceEntry, ContextGeofenceExit, ContextPassive:
		return Context(s)
	default:
		return ContextUnknown
	}
}

// Record is one observed fix plus its collected contextual fields.
// Once appended to the store a Record is immutable; ordering is by
// timestamp plus store insertion order.
type Record struct {
	Timestamp time.Time
	Context   Context
	Fields    map[string]any
}

// MarshalJSON emits the flat wire object: timestamp (epoch milliseconds),
// context, and every collected field at the top level.
func (r Record) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		obj[k] = v
	}
	obj["timestamp"] = r.Timestamp.UnixMilli()
	obj["context"] = string(r.Context)
	return json.Marshal(obj)
}

// UnmarshalJSON is the inverse of MarshalJSON: timestamp and context are
// lifted out, everything else lands in Fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	ms, ok := obj["timestamp"].(float64)
	if !ok {
		return fmt.Errorf("record: missing or non-numeric timestamp")
	}
	r.Timestamp = time.UnixMilli(int64(ms)).UTC()
	delete(obj, "timestamp")

	if tag, ok := obj["context"].(string); ok {
		r.Context = ParseContext(tag)
	} else {
		r.Context = ContextUnknown
	}
	delete(obj, "context")

	if len(obj) > 0 {
		r.Fields = obj
	} else {
		r.Fields = nil
	}
	return nil
}

// Batch is the per-endpoint post payload.
type Batch struct {
	Locations []Record `json:"locations"`
}

// EncodeBatch serializes records, oldest first, into the wire payload.
func EncodeBatch(records []Record) ([]byte, error) {
	data, err := json.Marshal(Batch{Locations: records})
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}
	return data, nil
}
