package discover

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, fs billy.Filesystem, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
}

func serverTree(t *testing.T) billy.Filesystem {
	fs := memfs.New()
	write(t, fs, map[string]string{
		"[qb]/qb-core/fxmanifest.lua":      "fx_version 'cerulean'\n",
		"[qb]/qb-core/client/main.lua":     "",
		"[qb]/qb-core/server/main.lua":     "",
		"[qb]/qb-core/shared/items.lua":    "",
		"[qb]/qb-core/html/app.js":         "",
		"hud/__resource.lua":               "",
		"hud/client.lua":                   "",
		"hud/node_modules/pkg/x.lua":       "",
		"hud/.git/hooks/x.lua":             "",
		"hud/stream/nested/fxmanifest.lua": "",
		"hud/stream/nested/nested.lua":     "",
		"empty/fxmanifest.lua":             "",
		"loose.lua":                        "",
		"docs/readme.md":                   "",
		".hidden/fxmanifest.lua":           "",
		".hidden/client.lua":               "",
	})
	return fs
}

func byName(res *Result) map[string]Resource {
	out := make(map[string]Resource)
	for _, r := range res.Resources {
		out[r.Name] = r
	}
	return out
}

func TestResources(t *testing.T) {
	res, err := NewFS(serverTree(t), "/srv", Options{}).Resources()
	require.NoError(t, err)
	assert.False(t, res.Direct)

	got := byName(res)
	require.Len(t, got, 3)

	core := got["[qb]/qb-core"]
	assert.Equal(t, filepath.Join("/srv", "[qb]/qb-core"), core.Dir)
	assert.Equal(t, filepath.Join("/srv", "[qb]/qb-core/fxmanifest.lua"), core.Manifest)
	assert.Equal(t, []string{
		filepath.Join("/srv", "[qb]/qb-core/client/main.lua"),
		filepath.Join("/srv", "[qb]/qb-core/server/main.lua"),
		filepath.Join("/srv", "[qb]/qb-core/shared/items.lua"),
	}, core.Scripts)

	hud := got["hud"]
	assert.Equal(t, []string{filepath.Join("/srv", "hud/client.lua")}, hud.Scripts)
	assert.Equal(t, []string{filepath.Join("/srv", "hud/stream/nested/nested.lua")}, got["hud/stream/nested"].Scripts)

	assert.Equal(t, []string{"[qb]/qb-core", "hud", "hud/stream/nested"},
		[]string{res.Resources[0].Name, res.Resources[1].Name, res.Resources[2].Name})
}

func TestResourcesRootIsResource(t *testing.T) {
	fs := memfs.New()
	write(t, fs, map[string]string{
		"fxmanifest.lua":     "",
		"client/main.lua":    "",
		"sub/fxmanifest.lua": "",
		"sub/inner.lua":      "",
	})
	res, err := NewFS(fs, "/srv/my-resource", Options{}).Resources()
	require.NoError(t, err)
	require.Len(t, res.Resources, 1)
	assert.Equal(t, "my-resource", res.Resources[0].Name)
	assert.Len(t, res.Resources[0].Scripts, 2)
}

func TestResourcesExclusions(t *testing.T) {
	fs := serverTree(t)
	write(t, fs, map[string]string{
		".gitignore":                           "*.generated.lua\n",
		".luafixignore":                        "shared/\n",
		"[qb]/qb-core/client/ui.generated.lua": "",
		"[qb]/qb-core/vendor/lib.lua":          "",
	})
	res, err := NewFS(fs, "/srv", Options{
		ExcludeResources: []string{"hud"},
		ExcludeDirs:      []string{"vendor"},
		Gitignore:        true,
	}).Resources()
	require.NoError(t, err)

	got := byName(res)
	assert.NotContains(t, got, "hud")
	assert.Contains(t, res.Excluded, "hud")
	assert.Equal(t, []string{
		filepath.Join("/srv", "[qb]/qb-core/client/main.lua"),
		filepath.Join("/srv", "[qb]/qb-core/server/main.lua"),
	}, got["[qb]/qb-core"].Scripts)
}

func TestResourcesExcludePatterns(t *testing.T) {
	res, err := NewFS(serverTree(t), "/srv", Options{ExcludePatterns: []string{"server/"}}).Resources()
	require.NoError(t, err)
	for _, s := range byName(res)["[qb]/qb-core"].Scripts {
		assert.NotContains(t, s, "server")
	}
}

func TestDirect(t *testing.T) {
	res, err := NewFS(serverTree(t), "/srv", Options{}).Direct()
	require.NoError(t, err)
	assert.True(t, res.Direct)
	require.Len(t, res.Resources, 1)
	assert.Equal(t, DirectGroup, res.Resources[0].Name)
	assert.Empty(t, res.Resources[0].Manifest)

	files := res.Files()
	assert.Contains(t, files, filepath.Join("/srv", "loose.lua"))
	assert.Contains(t, files, filepath.Join("/srv", "hud/stream/nested/nested.lua"))
	for _, f := range files {
		assert.NotContains(t, f, "node_modules")
		assert.NotContains(t, f, ".hidden")
		assert.False(t, strings.HasSuffix(f, Manifest))
	}

	owner := res.ResourceOf()
	assert.Equal(t, DirectGroup, owner[filepath.Join("/srv", "loose.lua")])
}

func TestDiscoverSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.lua")
	require.NoError(t, os.WriteFile(path, []byte("print(1)\n"), 0o644))

	res, err := Discover(path, false, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, res.Files())

	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(other, nil, 0o644))
	res, err = Discover(other, false, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Files())

	_, err = Discover(filepath.Join(dir, "missing"), false, Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDiscoverDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "garage", "client"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garage", "fxmanifest.lua"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garage", "client", "main.lua"), nil, 0o644))

	res, err := Discover(dir, false, Options{})
	require.NoError(t, err)
	require.Len(t, res.Resources, 1)
	assert.Equal(t, "garage", res.Resources[0].Name)
	assert.Equal(t, []string{filepath.Join(dir, "garage", "client", "main.lua")}, res.Files())

	res, err = Discover(dir, true, Options{})
	require.NoError(t, err)
	assert.True(t, res.Direct)
	assert.Equal(t, DirectGroup, res.Resources[0].Name)
}

func TestIsScript(t *testing.T) {
	assert.True(t, IsScript("client/main.lua"))
	assert.True(t, IsScript("MAIN.LUA"))
	assert.False(t, IsScript("fxmanifest.lua"))
	assert.False(t, IsScript("x/__resource.lua"))
	assert.False(t, IsScript("main.js"))
}

func TestReadExcludeFile(t *testing.T) {
	names, err := ReadExcludeFile(strings.NewReader("# maps\nmap-loader\n\n  qb-core  \n#hud\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"map-loader", "qb-core"}, names)
}

func TestReadManifestInfo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "qb-garages")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	assert.Equal(t, ManifestInfo{Name: "qb-garages"}, ReadManifestInfo(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, Manifest), []byte(`fx_version 'cerulean'
game 'gta5'
name "Garages"
author 'QBCore Framework'
description 'Vehicle garages'
version '1.3.0'
`), 0o644))
	assert.Equal(t, ManifestInfo{
		Name:        "Garages",
		Version:     "1.3.0",
		Author:      "QBCore Framework",
		Description: "Vehicle garages",
	}, ReadManifestInfo(dir))
}

func TestQuotedValue(t *testing.T) {
	assert.Equal(t, "1.0", quotedValue("version '1.0'"))
	assert.Equal(t, "it's", quotedValue(`description "it's"`))
	assert.Equal(t, "", quotedValue("version ''"))
	assert.Equal(t, "", quotedValue("version 1"))
}
