package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/dyluth/tally/pkg/crowd"
)

// keyVersion is bumped whenever the identity document changes shape.
const keyVersion = 1

// identity lists exactly the fields that decide whether two tasks are the same.
type identity struct {
	Version        int    `json:"v"`
	Annotation     string `json:"annotation"`
	MaxAssignments int    `json:"max_assignments"`
	Reward         string `json:"reward"`
	ContentSHA256  string `json:"content_sha256"`
}

// DeriveKey returns the ledger key for a rendered task: the hex SHA-256 of the
// canonical (RFC 8785) JSON identity document.
func DeriveKey(spec *crowd.TaskSpec, rendered []byte) (string, error) {
	doc, err := json.Marshal(identity{
		Version:        keyVersion,
		Annotation:     spec.Annotation,
		MaxAssignments: spec.MaxAssignments,
		Reward:         spec.Reward,
		ContentSHA256:  contentHash(rendered),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode task identity: %w", err)
	}

	canonical, err := jcs.Transform(doc)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize task identity: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
