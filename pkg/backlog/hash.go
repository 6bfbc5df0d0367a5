package backlog

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// ContentHash returns a deterministic digest of a subtask's authored
// content: id, title, description, and dependencies. Any edit to these
// fields changes the hash, which is what invalidates stale research
// contracts. Status, failure bookkeeping, and the generated context scope
// are deliberately excluded so that researching or executing a subtask does
// not invalidate its own contract.
func ContentHash(s *Subtask) string {
	h := sha256.New()
	fmt.Fprintf(h, "id:%s\n", s.ID)
	fmt.Fprintf(h, "title:%s\n", s.Title)
	fmt.Fprintf(h, "description:%s\n", s.Description)
	fmt.Fprintf(h, "deps:%s\n", strings.Join(s.Dependencies, ","))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// DescriptionHash hashes only the authored fields (title, description,
// dependencies), excluding the generated context scope. Delta reconciliation
// compares this to decide whether a subtask was edited by a human, since the
// scope is produced by research, not by the requirements document.
func DescriptionHash(s *Subtask) string {
	h := sha256.New()
	fmt.Fprintf(h, "title:%s\n", s.Title)
	fmt.Fprintf(h, "description:%s\n", s.Description)
	fmt.Fprintf(h, "deps:%s\n", strings.Join(s.Dependencies, ","))
	return fmt.Sprintf("%x", h.Sum(nil))
}
