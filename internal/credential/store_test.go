package credential

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestStore_PutGetClear(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, ok := store.Get()
			assert.False(t, ok, "new store must be empty")

			require.NoError(t, store.Put(Credential{Token: "tok-1", ScopedKey: "sk-yn-1"}))

			got, ok := store.Get()
			require.True(t, ok)
			assert.Equal(t, "tok-1", got.Token)
			assert.Equal(t, "sk-yn-1", got.ScopedKey)

			require.NoError(t, store.Put(Credential{Token: "tok-2"}))
			got, ok = store.Get()
			require.True(t, ok)
			assert.Equal(t, Credential{Token: "tok-2"}, got)

			require.NoError(t, store.Clear())
			_, ok = store.Get()
			assert.False(t, ok)
		})
	}
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, store.Clear())
			assert.NoError(t, store.Clear())
		})
	}
}

func TestStore_RejectsEmptyToken(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Put(Credential{ScopedKey: "sk-yn-1"})
			assert.ErrorIs(t, err, ErrEmptyToken)

			_, ok := store.Get()
			assert.False(t, ok)
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Put(Credential{Token: "persisted", ScopedKey: "key"}))

	second, err := NewFileStore(dir)
	require.NoError(t, err)

	got, ok := second.Get()
	require.True(t, ok)
	assert.Equal(t, "persisted", got.Token)
	assert.Equal(t, "key", got.ScopedKey)
}

func TestFileStore_Permissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(Credential{Token: "secret"}))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestFileStore_MalformedDocumentIsAbsent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0600))
	_, ok := store.Get()
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"api_key":"only-key"}`), 0600))
	_, ok = store.Get()
	assert.False(t, ok, "a document without a token is an absent credential")
}

func TestWatcher_ReportsExternalClear(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(Credential{Token: "tok"}))

	changes := make(chan bool, 4)
	watcher := NewWatcher(store, func(present bool) { changes <- present })
	watcher.debounce = 20 * time.Millisecond
	if err := watcher.Start(); err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer watcher.Stop()

	// A second store on the same directory plays the other process.
	other, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, other.Clear())

	select {
	case present := <-changes:
		assert.False(t, present)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification after external clear")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	watcher := NewWatcher(store, nil)
	watcher.Stop()
	if err := watcher.Start(); err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	watcher.Stop()
	watcher.Stop()
}
