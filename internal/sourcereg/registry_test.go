package sourcereg

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"suggestfed/internal/platform/logger"
	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/source"
	"suggestfed/internal/suggest/source/fake"
)

func writeManifest(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newTestRegistry(t *testing.T, manifestPath string) *Registry {
	t.Helper()
	r := New(manifestPath, *logger.Get())
	r.RegisterFactory("fake", func(e Entry) (source.Source, error) {
		s := fake.New(e.Identifier())
		s.MinLen = e.MinQueryLength
		s.Web = e.Web
		s.AfterZero = e.AfterZero
		return s, nil
	})
	return r
}

func TestRegistry_LoadBuildsSourcesFromManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	writeManifest(t, path, `[
		{"package":"pkg","class":"A","kind":"fake","minQueryLength":1},
		{"package":"pkg","class":"Web","kind":"fake","web":true,"afterZero":true}
	]`)

	r := newTestRegistry(t, path)
	require.NoError(t, r.Load())

	all := r.All()
	require.Len(t, all, 2)

	src, ok := r.Lookup(domain.SourceIdentifier{Package: "pkg", Class: "Web"})
	require.True(t, ok)
	require.True(t, src.IsWeb())
}

func TestRegistry_LoadUnknownKindFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	writeManifest(t, path, `[{"package":"pkg","class":"A","kind":"bogus"}]`)

	r := newTestRegistry(t, path)
	require.Error(t, r.Load())
}

func TestRegistry_WatchReloadsOnManifestRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	writeManifest(t, path, `[{"package":"pkg","class":"A","kind":"fake"}]`)

	r := newTestRegistry(t, path)
	require.NoError(t, r.Load())
	require.Len(t, r.All(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Watch(ctx))

	writeManifest(t, path, `[
		{"package":"pkg","class":"A","kind":"fake"},
		{"package":"pkg","class":"B","kind":"fake"}
	]`)

	require.Eventually(t, func() bool {
		return len(r.All()) == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRegistry_LookupUnknownSourceReportsFalse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	writeManifest(t, path, `[]`)

	r := newTestRegistry(t, path)
	require.NoError(t, r.Load())

	_, ok := r.Lookup(domain.SourceIdentifier{Package: "pkg", Class: "Missing"})
	require.False(t, ok)
}
