package ply

import (
	"encoding/json"

	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// The provenance log sits between these two comment lines, one JSON record
// per comment.
const (
	logOpen  = "["
	logClose = "]"
)

func encodeRecord(r pointcloud.ProvenanceRecord) (string, error) {
	b, err := json.Marshal(r)
	return string(b), err
}

func decodeRecord(s string) (pointcloud.ProvenanceRecord, error) {
	var r pointcloud.ProvenanceRecord
	err := json.Unmarshal([]byte(s), &r)
	return r, err
}
