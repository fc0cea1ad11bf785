package agentcore

import (
	"strings"

	"github.com/google/uuid"
)

// ID prefix constants for different entity types.
const (
	PrefixSession = "sess"
	PrefixCall    = "call"
	PrefixInput   = "inp"
)

// generateID produces a unique identifier with the given prefix,
// e.g. "sess_6f1b0c9a2d4e4b7f9c0a1d2e3f405162".
func generateID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
