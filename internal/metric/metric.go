// Package metric defines the metric kinds tracked by vitals and the record
// type persisted for each observation.
package metric

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"time"
)

// Kind identifies one category of health data.
type Kind string

const (
	KindSteps       Kind = "steps"
	KindSleep       Kind = "sleep"
	KindWeight      Kind = "weight"
	KindActivity    Kind = "activity"
	KindBodyBattery Kind = "body_battery"
	KindStress      Kind = "stress"
)

// Kinds returns every supported metric kind in stable order.
func Kinds() []Kind {
	return []Kind{KindSteps, KindSleep, KindWeight, KindActivity, KindBodyBattery, KindStress}
}

// ParseKind converts a user-supplied string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown metric kind %q (expected one of %v)", s, Kinds())
	}
	return k, nil
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSteps, KindSleep, KindWeight, KindActivity, KindBodyBattery, KindStress:
		return true
	}
	return false
}

// Daily reports whether records of this kind are date-granular.
// Activities keep their start time of day; everything else is one
// observation per calendar day.
func (k Kind) Daily() bool {
	return k != KindActivity
}

// SeriesFilename returns the name of the JSON series file for this kind.
func (k Kind) SeriesFilename() string {
	if k == KindActivity {
		return "activities.json"
	}
	return string(k) + ".json"
}

// Record is a single timestamped observation for one metric kind.
//
// Within one kind, Timestamp is unique: a later fetch for the same
// timestamp replaces the stored record, never duplicates it. Revision is an
// opaque marker from the remote source used for change detection.
type Record struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Revision  string    `json:"revision,omitempty"`
	Payload   Payload   `json:"payload"`
}

// Validate checks structural invariants before a record is stored.
func (r *Record) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid kind %q", r.Kind)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if r.Payload == nil {
		return fmt.Errorf("payload is required")
	}
	if r.Payload.Kind() != r.Kind {
		return fmt.Errorf("payload kind %q does not match record kind %q", r.Payload.Kind(), r.Kind)
	}
	return nil
}

// recordEnvelope mirrors Record with the payload left raw so the concrete
// type can be chosen from the kind tag.
type recordEnvelope struct {
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Revision  string          `json:"revision,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes a record, dispatching the payload on the kind tag.
func (r *Record) UnmarshalJSON(data []byte) error {
	var env recordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	payload, err := unmarshalPayload(env.Kind, env.Payload)
	if err != nil {
		return err
	}

	r.Kind = env.Kind
	r.Timestamp = env.Timestamp
	r.Revision = env.Revision
	r.Payload = payload
	return nil
}

func unmarshalPayload(kind Kind, data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("record has no payload")
	}

	var payload Payload
	switch kind {
	case KindSteps:
		payload = &Steps{}
	case KindSleep:
		payload = &Sleep{}
	case KindWeight:
		payload = &Weight{}
	case KindActivity:
		payload = &Activity{}
	case KindBodyBattery:
		payload = &BodyBattery{}
	case KindStress:
		payload = &Stress{}
	default:
		return nil, fmt.Errorf("invalid kind %q", kind)
	}

	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", kind, err)
	}
	return payload, nil
}

// HashRevision derives a revision marker from the payload contents. Used
// when the remote source does not supply an update marker of its own.
func HashRevision(p Payload) string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("fnv:%016x", h.Sum64())
}

// Day truncates t to midnight UTC. Daily kinds store their timestamps this
// way so that replace-by-timestamp lines up across fetches.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Sort orders records by timestamp ascending, in place.
func Sort(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
