package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciler_NoChangeDoesNotFire(t *testing.T) {
	dir := t.TempDir()
	path := writeTestSettings(t, dir, testSettingsYAML)
	store := newTestStore(t, path)

	_, version, err := store.Load(context.Background())
	require.NoError(t, err)

	fired := 0
	r := NewReconciler(store, version, time.Second, func(*Settings) { fired++ }, nil)

	r.reconcileOnce(context.Background())
	r.reconcileOnce(context.Background())

	assert.Equal(t, 0, fired)
}

func TestReconciler_FiresOnceOnExternalChange(t *testing.T) {
	dir := t.TempDir()
	path := writeTestSettings(t, dir, testSettingsYAML)
	store := newTestStore(t, path)

	_, version, err := store.Load(context.Background())
	require.NoError(t, err)

	var got *Settings
	fired := 0
	r := NewReconciler(store, version, time.Second, func(s *Settings) {
		got = s
		fired++
	}, nil)

	// External edit behind the reconciler's back.
	edited := `mainFolderID: main-2
archiveFolderID: archive-1
folders: {}
`
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))

	r.reconcileOnce(context.Background())
	require.Equal(t, 1, fired)
	require.NotNil(t, got)
	assert.Equal(t, "main-2", got.MainFolderID)

	// Same content again, no second fire.
	r.reconcileOnce(context.Background())
	assert.Equal(t, 1, fired)
}

func TestReconciler_BumpSuppressesOwnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeTestSettings(t, dir, testSettingsYAML)
	store := newTestStore(t, path)

	settings, version, err := store.Load(context.Background())
	require.NoError(t, err)

	fired := 0
	r := NewReconciler(store, version, time.Second, func(*Settings) { fired++ }, nil)

	// A save the caller applied itself, announced through Bump.
	settings.MainFolderID = "main-bumped"
	newVersion, err := store.Save(context.Background(), settings, version)
	require.NoError(t, err)
	r.Bump(newVersion)

	r.reconcileOnce(context.Background())
	assert.Equal(t, 0, fired)
}

func TestReconciler_LoadErrorKeepsVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeTestSettings(t, dir, testSettingsYAML)
	store := newTestStore(t, path)

	_, version, err := store.Load(context.Background())
	require.NoError(t, err)

	fired := 0
	r := NewReconciler(store, version, time.Second, func(*Settings) { fired++ }, nil)

	// Break the file, then reconcile. The error is logged and swallowed.
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: {{"), 0644))
	r.reconcileOnce(context.Background())
	assert.Equal(t, 0, fired)

	// Fix it with new content and the change is picked up.
	require.NoError(t, os.WriteFile(path, []byte("mainFolderID: fixed\narchiveFolderID: archive-1\n"), 0644))
	r.reconcileOnce(context.Background())
	assert.Equal(t, 1, fired)
}

func TestReconciler_RunPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeTestSettings(t, dir, testSettingsYAML)
	store := newTestStore(t, path)

	_, version, err := store.Load(context.Background())
	require.NoError(t, err)

	var fired atomic.Int32
	r := NewReconciler(store, version, 10*time.Millisecond, func(*Settings) {
		fired.Add(1)
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	edited := `mainFolderID: main-run
archiveFolderID: archive-1
folders: {}
`
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))

	require.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond, "reconcile loop should pick up the external edit")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconcile loop did not stop after cancel")
	}
}

func TestReconciler_NilStoreReturnsImmediately(t *testing.T) {
	r := NewReconciler(nil, "", time.Second, nil, nil)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with a nil store should return immediately")
	}
}
