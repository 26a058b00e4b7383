package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Metadata holds processing statistics for one stage run. Written after the
// run for operator visibility only; no stage reads another stage's metadata.
type Metadata struct {
	Stage      string    `json:"stage"`
	Method     string    `json:"method,omitempty"`
	Candidates int       `json:"candidates"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// WriteMetadata persists stage statistics to path.
func WriteMetadata(path string, md *Metadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("metadata %s: %w", md.Stage, err)
	}
	return os.WriteFile(path, data, 0644)
}

// ReadMetadata loads stage statistics from path. Returns nil, nil when the
// stage has never run.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("metadata %s: %w", path, err)
	}
	return &md, nil
}
