package sfmc

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is one result row from either protocol. The client enforces no
// schema: values are strings for SOAP leaf elements, nested Records for
// complex elements, and whatever encoding/json produced for REST items.
type Record map[string]any

// Name returns the record's display name, trying the REST and SOAP
// conventions in turn.
func (r Record) Name() string {
	for _, key := range []string{"name", "Name"} {
		if v, ok := r[key]; ok {
			return fmt.Sprint(v)
		}
	}
	return ""
}

// String returns the string form of a (possibly nested, dot-separated)
// field, or "" when absent.
func (r Record) String(key string) string {
	v, ok := r.Lookup(key)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Lookup resolves a dot-separated path through nested Records and
// JSON-decoded maps.
func (r Record) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = r
	for _, p := range parts {
		switch m := cur.(type) {
		case Record:
			v, ok := m[p]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]any:
			v, ok := m[p]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// Continuation is the unified "is there more?" signal across both
// protocols: a SOAP continuation carries the server-issued request id, a
// REST continuation the next page number. The zero value means done.
type Continuation struct {
	next string
}

// More builds a continuation carrying an opaque resume token.
func More(token string) Continuation {
	return Continuation{next: token}
}

// Done reports whether the result sequence is exhausted.
func (c Continuation) Done() bool {
	return c.next == ""
}

// Token returns the opaque resume token, or "" when done.
func (c Continuation) Token() string {
	return c.next
}

// Result is the outcome of one logical retrieve/get call. With morerow
// the continuation is always done; without it the caller may keep paging
// through the invoker-level page methods.
type Result struct {
	Records      []Record
	Status       string
	Continuation Continuation

	// Partial is set when cancellation stopped paging early; Records
	// holds everything accumulated up to that point.
	Partial bool
}

// SaveResult is the per-object outcome of a SOAP Create/Update/Delete.
type SaveResult struct {
	StatusCode    string
	StatusMessage string
	NewID         string
	NewObjectID   string
}

// FieldDefinition is one property of a SOAP object as reported by Describe.
type FieldDefinition struct {
	Name        string
	FieldType   string
	IsRequired  bool
	Retrievable bool
}

// APITime handles the platform's date formats. Several endpoints return
// timestamps without a timezone (e.g. "2020-09-09T04:04:02.257").
type APITime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler for APITime
func (t *APITime) UnmarshalJSON(data []byte) error {
	var timeStr string
	if err := json.Unmarshal(data, &timeStr); err != nil {
		return err
	}

	if timeStr == "" {
		t.Time = time.Time{}
		return nil
	}

	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999",
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if parsed, err := time.Parse(format, timeStr); err == nil {
			t.Time = parsed
			return nil
		}
	}

	return fmt.Errorf("unable to parse time string: %s", timeStr)
}

// MarshalJSON implements json.Marshaler for APITime
func (t APITime) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}
