package session

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
)

// The mapper agent's progress lines are, in effect, an ill-specified wire
// protocol: free text with a small fixed vocabulary of marker substrings.
// All classification lives in this file so upstream format drift only ever
// requires updating one table.

// progressUpdate is the structured meaning extracted from one progress line.
type progressUpdate struct {
	stage  domain.Stage
	status domain.StageStatus

	iteration     int // 0 = not present
	maxIterations int // 0 = not present
	filesSelected int // -1 = not present
}

// stageMarkers is the closed set of recognized marker substrings, matched
// case-insensitively. Order matters: the first match wins, so completion
// markers that contain an activation marker's text must come first.
var stageMarkers = []struct {
	marker string
	stage  domain.Stage
	status domain.StageStatus
}{
	{"source dataset loaded", domain.StageIngest, domain.StageCompleted},
	{"loading source dataset", domain.StageIngest, domain.StageActive},
	{"schema analysis complete", domain.StageAnalyze, domain.StageCompleted},
	{"analyzing legacy schemas", domain.StageAnalyze, domain.StageActive},
	{"all reasoning passes complete", domain.StageReason, domain.StageCompleted},
	{"starting reasoning pass", domain.StageReason, domain.StageActive},
	{"refinement complete", domain.StageRefine, domain.StageCompleted},
	{"starting refinement", domain.StageRefine, domain.StageActive},
}

var (
	iterationRe = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	filesRe     = regexp.MustCompile(`selected (\d+) files?`)
)

// classifyProgress maps a free-text progress line onto stage transitions
// and embedded counters. Unrecognized text yields an empty update: the line
// is still retained for display but changes no stage status.
func classifyProgress(line string) progressUpdate {
	u := progressUpdate{filesSelected: -1}
	lower := strings.ToLower(line)

	for _, m := range stageMarkers {
		if strings.Contains(lower, m.marker) {
			u.stage = m.stage
			u.status = m.status
			break
		}
	}

	// Iteration index and cap from an embedded "N/M" pattern, only on lines
	// that carry a reasoning-pass marker.
	if u.stage == domain.StageReason {
		if m := iterationRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			total, _ := strconv.Atoi(m[2])
			u.iteration, u.maxIterations = n, total
		}
	}

	if m := filesRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			u.filesSelected = n
		}
	}
	return u
}
