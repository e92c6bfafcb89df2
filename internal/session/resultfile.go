// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/pkg/types"
)

// ResultFile is the on-disk representation of a finished session. A caller
// can save a session's result and reload it later without re-running the
// research.
type ResultFile struct {
	Result  types.Result  `yaml:"result"`
	Summary ResultSummary `yaml:"summary"`
}

// ResultSummary stores headline statistics and a timestamp.
type ResultSummary struct {
	Questions     int       `yaml:"questions"`
	Citations     int       `yaml:"citations"`
	Insights      int       `yaml:"insights"`
	FallbackUsed  bool      `yaml:"fallback_used"`
	Inconsistency int       `yaml:"inconsistencies"`
	Timestamp     time.Time `yaml:"timestamp"`
}

// WriteResultFile saves a session result to a YAML file.
func WriteResultFile(path string, result types.Result) error {
	citations := 0
	for _, v := range result.Evidence {
		citations += len(v)
	}
	rf := ResultFile{
		Result: result,
		Summary: ResultSummary{
			Questions:     len(result.Questions),
			Citations:     citations,
			Insights:      len(result.Insights),
			FallbackUsed:  result.FallbackUsed,
			Inconsistency: len(result.Inconsistencies),
			Timestamp:     time.Now().UTC(),
		},
	}
	data, err := yaml.Marshal(rf)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}
	return nil
}

// ReadResultFile loads a saved session result.
func ReadResultFile(path string) (ResultFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ResultFile{}, fmt.Errorf("reading result file: %w", err)
	}
	var rf ResultFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return ResultFile{}, fmt.Errorf("parsing result file: %w", err)
	}
	return rf, nil
}
