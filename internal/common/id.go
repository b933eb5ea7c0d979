package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewJobID generates a unique job identifier with the "capto_" prefix.
// Format: capto_<12 hex chars>. The id doubles as the job's directory name
// under the output root, so it stays short and filesystem-safe.
func NewJobID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "capto_" + hex[:12]
}
