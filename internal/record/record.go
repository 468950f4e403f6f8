// Package record defines the core Record type flowing through the logsink
// pipeline and its normalization into the stored document envelope.
package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Record is one unit of input data: an unordered mapping from field name to
// value (strings, numbers, nested mappings, arrays), as delivered by a source.
type Record map[string]any

// Field names consumed by Normalize and lifted out of the stored fields.
const (
	FieldType      = "type"
	FieldEpochtime = "epochtime"
	FieldDate      = "date"
	FieldHostname  = "hostname"
	FieldMessage   = "message"
	FieldUUID      = "uuid"
)

// Document is the canonical envelope persisted for each record.
type Document struct {
	ID         string    `bson:"_id,omitempty" json:"id,omitempty"`
	Type       string    `bson:"type" json:"type"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	SourceHost string    `bson:"source_host" json:"source_host"`
	Message    string    `bson:"message" json:"message"`
	Fields     Record    `bson:"fields,omitempty" json:"fields,omitempty"`
}

// dateLayouts are tried in order when parsing a "date" field.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Normalize reshapes a record into the canonical Document. Missing or
// malformed optional fields degrade to defaults; Normalize never fails.
//
// Timestamp resolution order: "epochtime" if convertible, else a "date"
// field that parses as ISO-8601, else now. The consumed fields are removed
// from the stored Fields map; everything else is kept as-is.
func Normalize(r Record, now time.Time) Document {
	doc := Document{
		Type:       "unknown",
		Timestamp:  now,
		SourceHost: "none",
	}

	fields := make(Record, len(r))
	for k, v := range r {
		fields[k] = v
	}

	if s, ok := takeString(fields, FieldType); ok {
		doc.Type = s
	}
	if s, ok := takeString(fields, FieldUUID); ok {
		doc.ID = s
	}
	if s, ok := takeString(fields, FieldHostname); ok {
		doc.SourceHost = s
	}

	if v, ok := fields[FieldEpochtime]; ok {
		if t, ok := epochToTime(v); ok {
			delete(fields, FieldEpochtime)
			doc.Timestamp = t
		}
	} else if v, ok := fields[FieldDate]; ok {
		if s, isStr := v.(string); isStr {
			if t, ok := parseDate(s); ok {
				delete(fields, FieldDate)
				doc.Timestamp = t
			}
		}
	}

	if s, ok := takeString(fields, FieldMessage); ok {
		doc.Message = s
	} else {
		doc.Message = encodeFields(fields)
	}

	if len(fields) > 0 {
		doc.Fields = fields
	}
	return doc
}

// takeString removes the named field and returns its string form.
// Non-string values are stringified; absent or nil values report false.
func takeString(r Record, name string) (string, bool) {
	v, ok := r[name]
	if !ok || v == nil {
		return "", false
	}
	delete(r, name)
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// epochToTime converts an epochtime value (seconds since the Unix epoch,
// possibly fractional) into a time.Time.
func epochToTime(v any) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		sec, frac := math.Modf(n)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))), true
	case float32:
		return epochToTime(float64(n))
	case int:
		return time.Unix(int64(n), 0), true
	case int32:
		return time.Unix(int64(n), 0), true
	case int64:
		return time.Unix(n, 0), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return epochToTime(f)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return time.Time{}, false
		}
		return epochToTime(f)
	default:
		return time.Time{}, false
	}
}

// parseDate parses an ISO-8601-ish date string.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// encodeFields serializes the leftover fields for use as the message body
// when the record carries no explicit message.
func encodeFields(r Record) string {
	b, err := json.Marshal(r)
	if err != nil {
		// Unmarshalable values (channels, funcs) never arrive from real
		// sources; fall back to the fmt rendering rather than fail.
		return fmt.Sprint(map[string]any(r))
	}
	return string(b)
}
