package planner

import (
	"encoding/json"
	"strings"
)

// TaskSpec is one planner-produced task before plan construction.
type TaskSpec struct {
	// Description is the free-text instruction.
	Description string `json:"description"`
	// ToolHint optionally names a preferred tool.
	ToolHint string `json:"tool_hint,omitempty"`
	// DependsOn lists zero-based indices of earlier tasks in the list.
	DependsOn []int `json:"depends_on,omitempty"`
	// Priority is the task priority name; unknown values default to medium.
	Priority string `json:"priority,omitempty"`
}

// ParseTaskList extracts a JSON task array from a planner response.
// Planner output is untrusted: prose around the array is tolerated, and
// anything unparseable yields an empty list so the caller can fall back
// to a single-task plan. Malformed output is never an error by itself.
func ParseTaskList(response string) []TaskSpec {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil
	}

	var specs []TaskSpec
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &specs); err != nil {
		return nil
	}

	// Drop entries without a description; a planner that emits structure
	// but no instructions has nothing dispatchable.
	valid := specs[:0]
	for _, s := range specs {
		if strings.TrimSpace(s.Description) != "" {
			valid = append(valid, s)
		}
	}
	return valid
}
