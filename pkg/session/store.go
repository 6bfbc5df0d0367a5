package session

import (
	"fmt"
	"os"
	"sync"

	"prp/pkg/backlog"
	"prp/pkg/logx"
	"prp/pkg/runerrors"
	"prp/pkg/utils"
)

// Store is the single writer of one session's persisted hierarchy.
//
// Status transitions are staged in memory via UpdateStatus and written to
// disk only on Flush, so many rapid transitions coalesce into one write.
// The invariant: the file on disk always reflects some previously flushed
// state, and the in-memory pending backlog is equal to or more advanced
// than disk. Re-reading after a crash recovers exactly the last
// successfully flushed state.
type Store struct {
	session *Session
	logger  *logx.Logger

	mu      sync.Mutex
	pending *backlog.Backlog
	dirty   bool
}

// NewStore creates a store for the given session and loads the persisted
// hierarchy into the pending slot. A session that has never been saved
// starts with an empty backlog.
func NewStore(sess *Session) (*Store, error) {
	s := &Store{
		session: sess,
		logger:  logx.NewLogger("session"),
	}

	b, err := s.Load()
	if err != nil {
		return nil, err
	}
	s.pending = b
	return s, nil
}

// Session returns the session this store persists.
func (s *Store) Session() *Session {
	return s.session
}

// Load reads and schema-validates the persisted hierarchy from disk.
// Validation failure is a storage (CorruptState) error: the pipeline must
// not run against a hierarchy it cannot trust.
func (s *Store) Load() (*backlog.Backlog, error) {
	path := s.session.BacklogPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return backlog.New(), nil
		}
		return nil, runerrors.NewStorage(err, fmt.Sprintf("cannot read backlog %s", path))
	}

	b, err := backlog.Unmarshal(data)
	if err != nil {
		return nil, runerrors.NewStorage(err, fmt.Sprintf("corrupt backlog %s", path))
	}
	return b, nil
}

// Save validates, serializes, and persists a backlog via atomic write.
// On failure mid-write the previous persisted state is untouched.
func (s *Store) Save(b *backlog.Backlog) error {
	data, err := b.Marshal()
	if err != nil {
		return runerrors.NewStorage(err, "cannot serialize backlog")
	}
	if err := utils.WriteFileAtomic(s.session.BacklogPath(), data, utils.DefaultFileMode); err != nil {
		return runerrors.NewStorage(err, "cannot persist backlog")
	}
	return nil
}

// Pending returns the staged in-memory backlog. Callers must treat it as
// immutable; all changes go through UpdateStatus/SetBacklog.
func (s *Store) Pending() *backlog.Backlog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SetBacklog stages a whole replacement tree (initial decomposition or
// delta reconciliation) without writing to disk.
func (s *Store) SetBacklog(b *backlog.Backlog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = b
	s.dirty = true
}

// UpdateStatus stages a new backlog with the single targeted subtask's
// status replaced. The transition must be legal per backlog.CanTransition;
// in particular Complete, Failed, and Obsolete are terminal here, only
// RecordFailure and delta reconciliation bypass the lifecycle. Nothing is
// written to disk until Flush.
func (s *Store) UpdateStatus(id string, status backlog.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.pending.FindSubtask(id)
	if current == nil {
		return runerrors.NewStorage(nil, fmt.Sprintf("cannot update status of %s: no such subtask", id))
	}
	if !backlog.CanTransition(current.Status, status) {
		return runerrors.NewStorage(nil, fmt.Sprintf("illegal transition %s -> %s for %s", current.Status, status, id))
	}

	updated, err := s.pending.WithStatus(id, status)
	if err != nil {
		return runerrors.NewStorage(err, fmt.Sprintf("cannot update status of %s", id))
	}
	s.logger.DebugState(id, string(current.Status), string(status))
	s.pending = updated
	s.dirty = true
	return nil
}

// RecordFailure stages the subtask as Failed with the reason retained for
// reporting.
func (s *Store) RecordFailure(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.pending.WithFailure(id, reason)
	if err != nil {
		return runerrors.NewStorage(err, fmt.Sprintf("cannot record failure of %s", id))
	}
	s.pending = updated
	s.dirty = true
	return nil
}

// SetContextScope stages the generated implementation contract onto the
// subtask.
func (s *Store) SetContextScope(id, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.pending.WithContextScope(id, scope)
	if err != nil {
		return runerrors.NewStorage(err, fmt.Sprintf("cannot set context scope of %s", id))
	}
	s.pending = updated
	s.dirty = true
	return nil
}

// Dirty reports whether staged changes exist since the last flush.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Flush persists the staged backlog if and only if there are staged changes
// since the last flush, then clears the dirty flag.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if err := s.Save(s.pending); err != nil {
		return err
	}
	s.dirty = false
	s.logger.Debug("Flushed backlog for session %s", s.session.ID)
	return nil
}
