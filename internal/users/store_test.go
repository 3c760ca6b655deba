package users

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ReignOfTea/protest-dash/internal/logging"
)

const testAllowlist = `users:
  - discord_id: "1001"
    name: Alex
    role: admin
  - discord_id: "1002"
    name: Sam
    role: editor
`

func writeAllowlist(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestStore(t *testing.T, content string) *Store {
	t.Helper()

	path := writeAllowlist(t, t.TempDir(), content)
	store, err := NewStore(path, []byte("test-salt"), &logging.Logger{Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Lookup(t *testing.T) {
	store := newTestStore(t, testAllowlist)

	alex, ok := store.Lookup("1001")
	require.True(t, ok)
	assert.Equal(t, "Alex", alex.Name)
	assert.Equal(t, RoleAdmin, alex.Role)

	_, ok = store.Lookup("9999")
	assert.False(t, ok, "IDs outside the allowlist must not resolve")
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t, testAllowlist)

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "Alex", list[0].Name)
	assert.Equal(t, "Sam", list[1].Name)
}

func TestStore_RejectsUnknownRole(t *testing.T) {
	path := writeAllowlist(t, t.TempDir(), `users:
  - discord_id: "1001"
    name: Alex
    role: overlord
`)

	_, err := NewStore(path, []byte("salt"), &logging.Logger{Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestStore_RejectsMissingID(t *testing.T) {
	path := writeAllowlist(t, t.TempDir(), `users:
  - name: Nobody
    role: editor
`)

	_, err := NewStore(path, []byte("salt"), &logging.Logger{Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestStore_HotReload(t *testing.T) {
	dir := t.TempDir()
	path := writeAllowlist(t, dir, testAllowlist)

	store, err := NewStore(path, []byte("salt"), &logging.Logger{Logger: zap.NewNop()})
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.Lookup("1003")
	require.False(t, ok)

	updated := testAllowlist + `  - discord_id: "1003"
    name: Robin
    role: editor
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := store.Lookup("1003")
		return ok
	}, 2*time.Second, 10*time.Millisecond, "new allowlist entries must appear without a restart")
}

func TestStore_BrokenReloadKeepsPreviousState(t *testing.T) {
	dir := t.TempDir()
	path := writeAllowlist(t, dir, testAllowlist)

	store, err := NewStore(path, []byte("salt"), &logging.Logger{Logger: zap.NewNop()})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, os.WriteFile(path, []byte(`users: [`), 0o644))

	// The broken file must not wipe the working allowlist. There is no
	// positive signal for "reload failed", so give the watcher a moment.
	time.Sleep(200 * time.Millisecond)

	_, ok := store.Lookup("1001")
	assert.True(t, ok)
}

func TestStore_ActorTag(t *testing.T) {
	store := newTestStore(t, testAllowlist)

	tag := store.ActorTag("1001")
	assert.Len(t, tag, 12)
	assert.Regexp(t, "^[0-9a-f]+$", tag)
	assert.Equal(t, tag, store.ActorTag("1001"), "tags must be stable")
	assert.NotEqual(t, tag, store.ActorTag("1002"), "different users get different tags")

	// Same salt yields the same tag across instances, so the commit
	// trail stays consistent over restarts.
	other := newTestStore(t, testAllowlist)
	assert.Equal(t, tag, other.ActorTag("1001"))
}
