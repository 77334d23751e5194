package pointcloud

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/banshee-data/lidarfeatures/internal/version"
)

// ProvenanceRecord is one entry of the append-only log describing how a
// cloud was produced.
type ProvenanceRecord struct {
	Time       time.Time
	Module     string
	Parameters []any
	Version    string
}

// AddProvenance appends a record stamped with the cloud clock (in UTC) and
// the library version.
func (pc *PointCloud) AddProvenance(module string, params ...any) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if params == nil {
		params = []any{}
	}
	pc.provenance = append(pc.provenance, ProvenanceRecord{
		Time:       pc.clock.Now().UTC(),
		Module:     module,
		Parameters: params,
		Version:    version.Version,
	})
}

// AppendProvenance appends existing records unchanged, for readers restoring
// a log from disk.
func (pc *PointCloud) AppendProvenance(records ...ProvenanceRecord) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.provenance = append(pc.provenance, records...)
}

// Provenance returns a copy of the log in append order.
func (pc *PointCloud) Provenance() []ProvenanceRecord {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return append([]ProvenanceRecord(nil), pc.provenance...)
}

// ProvenanceLen returns the number of records.
func (pc *PointCloud) ProvenanceLen() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.provenance)
}

type provenanceJSON struct {
	Module     string `json:"module"`
	Parameters []any  `json:"parameters"`
	Time       string `json:"time"`
	Version    string `json:"version"`
}

// MarshalJSON writes the record as an object with sorted keys and an
// RFC 3339 UTC time. Non-finite float parameters become "NaN", "+Inf" or
// "-Inf".
func (r ProvenanceRecord) MarshalJSON() ([]byte, error) {
	params := make([]any, len(r.Parameters))
	for i, p := range r.Parameters {
		params[i] = jsonSafe(p)
	}
	return json.Marshal(provenanceJSON{
		Module:     r.Module,
		Parameters: params,
		Time:       r.Time.UTC().Format(time.RFC3339Nano),
		Version:    r.Version,
	})
}

// UnmarshalJSON reads a record written by MarshalJSON. Integral numbers come
// back as int, all others as float64.
func (r *ProvenanceRecord) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var w provenanceJSON
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("decoding provenance: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, w.Time)
	if err != nil {
		return fmt.Errorf("provenance time %q: %w", w.Time, err)
	}
	params := make([]any, len(w.Parameters))
	for i, p := range w.Parameters {
		params[i] = numbers(p)
	}
	*r = ProvenanceRecord{Time: t.UTC(), Module: w.Module, Parameters: params, Version: w.Version}
	return nil
}

func jsonSafe(v any) any {
	switch x := v.(type) {
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonSafe(e)
		}
		return out
	}
	return v
}

func finite(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return f
}

func numbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if !strings.ContainsAny(x.String(), ".eE") {
			if n, err := x.Int64(); err == nil {
				return int(n)
			}
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = numbers(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = numbers(x[k])
		}
		return x
	}
	return v
}
