package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestFindOrCreateDeterministic(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	sess, created, err := m.FindOrCreate(hashA)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, sess.Seq)
	assert.Empty(t, sess.ParentSessionID)

	// Same content hash finds the same session.
	again, created, err := m.FindOrCreate(hashA)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sess.ID, again.ID)
}

func TestFindOrCreateDeltaChaining(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	first, _, err := m.FindOrCreate(hashA)
	require.NoError(t, err)

	second, created, err := m.FindOrCreate(hashB)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, second.Seq)
	assert.Equal(t, first.ID, second.ParentSessionID)

	parent, err := m.Parent(second)
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, first.ID, parent.ID)

	root, err := m.Parent(first)
	require.NoError(t, err)
	assert.Nil(t, root)
}

func TestSessionDirLayout(t *testing.T) {
	workDir := t.TempDir()
	m, err := NewManager(workDir)
	require.NoError(t, err)

	sess, _, err := m.FindOrCreate(hashA)
	require.NoError(t, err)

	wantDir := filepath.Join(workDir, "plan", "001_"+hashA[:12])
	assert.Equal(t, wantDir, sess.Path)

	// session.json and research/ exist.
	_, err = os.Stat(filepath.Join(sess.Path, "session.json"))
	assert.NoError(t, err)
	info, err := os.Stat(sess.ResearchDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestManagerSurvivesRestart(t *testing.T) {
	workDir := t.TempDir()

	m1, err := NewManager(workDir)
	require.NoError(t, err)
	sess, _, err := m1.FindOrCreate(hashA)
	require.NoError(t, err)

	// A new manager over the same work dir discovers the session.
	m2, err := NewManager(workDir)
	require.NoError(t, err)
	found, created, err := m2.FindOrCreate(hashA)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sess.ID, found.ID)
}

func TestListRejectsCorruptMetadata(t *testing.T) {
	workDir := t.TempDir()
	m, err := NewManager(workDir)
	require.NoError(t, err)
	_, _, err = m.FindOrCreate(hashA)
	require.NoError(t, err)

	// Corrupt the session metadata.
	metaPath := filepath.Join(workDir, "plan", "001_"+hashA[:12], "session.json")
	require.NoError(t, os.WriteFile(metaPath, []byte("{not json"), 0644))

	_, err = m.List()
	assert.Error(t, err)
}

func TestSessionDirName(t *testing.T) {
	name := SessionDirName(3, "b3d3efdaf0ed99887766")
	assert.Equal(t, "003_b3d3efdaf0ed", name)
	assert.True(t, strings.HasPrefix(name, "003_"))
}
