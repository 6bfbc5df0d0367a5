// Package session owns the canonical persisted hierarchy for one pipeline
// session: discovery by requirements content hash, atomic save/load, batched
// in-memory updates with explicit flush, and delta-session chaining.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"prp/pkg/runerrors"
	"prp/pkg/utils"
)

const (
	// planDirName is the directory under the work dir holding all sessions.
	planDirName = "plan"
	// sessionFileName holds session metadata inside a session directory.
	sessionFileName = "session.json"
	// backlogFileName holds the persisted hierarchy inside a session directory.
	backlogFileName = "backlog.json"
	// researchDirName holds per-subtask cache artifacts inside a session directory.
	researchDirName = "research"
	// hashPrefixLen is how much of the content hash appears in directory names.
	hashPrefixLen = 12
)

// Session identifies one pipeline session. Sessions form a linear chain:
// each requirements change creates a new session pointing at its predecessor.
type Session struct {
	ID              string    `json:"id"`
	ContentHash     string    `json:"content_hash"`
	Seq             int       `json:"seq"`
	ParentSessionID string    `json:"parent_session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`

	// Path is the session directory, derived at load time.
	Path string `json:"-"`
}

// BacklogPath returns the path of the persisted hierarchy file.
func (s *Session) BacklogPath() string {
	return filepath.Join(s.Path, backlogFileName)
}

// ResearchDir returns the per-session cache directory.
func (s *Session) ResearchDir() string {
	return filepath.Join(s.Path, researchDirName)
}

// dirName builds the on-disk directory name, e.g. "003_b3d3efdaf0ed".
func dirName(seq int, contentHash string) string {
	prefix := contentHash
	if len(prefix) > hashPrefixLen {
		prefix = prefix[:hashPrefixLen]
	}
	return fmt.Sprintf("%03d_%s", seq, prefix)
}

// Manager discovers and creates sessions under one work directory.
type Manager struct {
	planDir string
}

// NewManager creates a session manager rooted at workDir.
func NewManager(workDir string) (*Manager, error) {
	planDir := filepath.Join(workDir, planDirName)
	if err := utils.EnsureDir(planDir); err != nil {
		return nil, runerrors.NewStorage(err, "cannot create plan directory")
	}
	return &Manager{planDir: planDir}, nil
}

// List returns all sessions ordered by sequence number.
func (m *Manager) List() ([]*Session, error) {
	entries, err := os.ReadDir(m.planDir)
	if err != nil {
		return nil, runerrors.NewStorage(err, "cannot read plan directory")
	}

	var sessions []*Session
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sess, err := m.readSession(filepath.Join(m.planDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Seq < sessions[j].Seq })
	return sessions, nil
}

// FindOrCreate looks up a session by requirements content hash, creating a
// fresh one when no session matches. The second return reports whether a new
// session was created. A new session is chained to the latest existing
// session via ParentSessionID; the caller decides whether that chaining
// calls for delta reconciliation. Safe to call once per process start.
func (m *Manager) FindOrCreate(contentHash string) (*Session, bool, error) {
	if contentHash == "" {
		return nil, false, runerrors.NewConfiguration("empty content hash")
	}

	sessions, err := m.List()
	if err != nil {
		return nil, false, err
	}
	for _, sess := range sessions {
		if sess.ContentHash == contentHash {
			return sess, false, nil
		}
	}

	seq := 1
	parentID := ""
	if n := len(sessions); n > 0 {
		seq = sessions[n-1].Seq + 1
		parentID = sessions[n-1].ID
	}

	sess := &Session{
		ID:              uuid.New().String(),
		ContentHash:     contentHash,
		Seq:             seq,
		ParentSessionID: parentID,
		CreatedAt:       time.Now().UTC(),
		Path:            filepath.Join(m.planDir, dirName(seq, contentHash)),
	}

	if err := utils.EnsureDir(sess.Path); err != nil {
		return nil, false, runerrors.NewStorage(err, "cannot create session directory")
	}
	if err := utils.EnsureDir(sess.ResearchDir()); err != nil {
		return nil, false, runerrors.NewStorage(err, "cannot create research directory")
	}
	if err := m.writeSession(sess); err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Parent returns the predecessor of sess in the chain, or nil for the first
// session.
func (m *Manager) Parent(sess *Session) (*Session, error) {
	if sess.ParentSessionID == "" {
		return nil, nil
	}
	sessions, err := m.List()
	if err != nil {
		return nil, err
	}
	for _, candidate := range sessions {
		if candidate.ID == sess.ParentSessionID {
			return candidate, nil
		}
	}
	return nil, runerrors.NewStorage(nil, fmt.Sprintf("parent session %s not found", sess.ParentSessionID))
}

func (m *Manager) readSession(dir string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, sessionFileName))
	if err != nil {
		return nil, runerrors.NewStorage(err, fmt.Sprintf("cannot read session metadata in %s", dir))
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, runerrors.NewStorage(err, fmt.Sprintf("corrupt session metadata in %s", dir))
	}
	if sess.ID == "" || sess.ContentHash == "" || sess.Seq <= 0 {
		return nil, runerrors.NewStorage(nil, fmt.Sprintf("incomplete session metadata in %s", dir))
	}
	sess.Path = dir
	return &sess, nil
}

func (m *Manager) writeSession(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return runerrors.NewStorage(err, "cannot marshal session metadata")
	}
	path := filepath.Join(sess.Path, sessionFileName)
	if err := utils.WriteFileAtomic(path, data, utils.DefaultFileMode); err != nil {
		return runerrors.NewStorage(err, "cannot write session metadata")
	}
	return nil
}

// SessionDirName is exported for tests and tooling that inspect the on-disk
// layout.
func SessionDirName(seq int, contentHash string) string {
	return dirName(seq, contentHash)
}
