// Package reqdoc handles the requirements document: snapshotting, content
// hashing, and deterministic decomposition into a backlog hierarchy.
package reqdoc

import (
	"crypto/sha256"
	"fmt"
	"os"
	"unicode/utf8"

	"prp/pkg/runerrors"
)

// Snapshot is an immutable capture of the requirements document at one
// point in time. The pipeline only ever reads the document; it never writes
// to it.
type Snapshot struct {
	Path        string
	Content     string
	ContentHash string
}

// Take reads the requirements document and computes its content hash.
// Content is always decoded as UTF-8 text; invalid encoding fails loudly
// rather than being silently replaced. There is exactly one snapshot code
// path.
func Take(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, runerrors.NewConfiguration(fmt.Sprintf("cannot read requirements document %s: %v", path, err))
	}
	if !utf8.Valid(data) {
		return nil, runerrors.NewConfiguration(fmt.Sprintf("requirements document %s is not valid UTF-8", path))
	}

	return &Snapshot{
		Path:        path,
		Content:     string(data),
		ContentHash: HashContent(data),
	}, nil
}

// HashContent returns the deterministic digest used for session identity.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}
