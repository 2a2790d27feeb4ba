package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/luafix/internal/discover"
)

func setup(t *testing.T) (*discover.Result, string, string) {
	t.Helper()
	dir := t.TempDir()
	hud := filepath.Join(dir, "hud")
	garage := filepath.Join(dir, "garage")
	for _, d := range []string{hud, garage} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	client := filepath.Join(hud, "client.lua")
	server := filepath.Join(garage, "server.lua")
	plain := filepath.Join(garage, "plain.lua")

	require.NoError(t, os.WriteFile(client, []byte("t[#t+1] = v\n"), 0o644))
	require.NoError(t, os.WriteFile(client+".bak", []byte("table.insert(t, v)\n"), 0o644))
	require.NoError(t, os.WriteFile(server, []byte("-- print(x)\n"), 0o644))
	require.NoError(t, os.WriteFile(server+".bak", []byte("print(x)\n"), 0o644))
	require.NoError(t, os.WriteFile(plain, []byte("local a = 1\n"), 0o644))

	res := &discover.Result{
		Root: dir,
		Resources: []discover.Resource{
			{Name: "hud", Dir: hud, Scripts: []string{client}},
			{Name: "garage", Dir: garage, Scripts: []string{plain, server}},
		},
	}
	return res, client, server
}

func TestFind(t *testing.T) {
	res, client, server := setup(t)

	entries := Find(res)
	require.Len(t, entries, 2)
	assert.Equal(t, "garage", entries[0].Resource)
	assert.Equal(t, server, entries[0].Script)
	assert.Equal(t, server+".bak", entries[0].Backup)
	assert.Equal(t, int64(len("print(x)\n")), entries[0].Size)
	assert.Equal(t, client, entries[1].Script)

	groups := ByResource(entries)
	assert.Len(t, groups["hud"], 1)
	assert.Len(t, groups["garage"], 1)
}

func TestRevert(t *testing.T) {
	res, client, server := setup(t)

	out := New(nil).Revert(Find(res))
	assert.Equal(t, 2, out.Done)
	assert.NoError(t, out.Err())

	data, err := os.ReadFile(client)
	require.NoError(t, err)
	assert.Equal(t, "table.insert(t, v)\n", string(data))
	data, err = os.ReadFile(server)
	require.NoError(t, err)
	assert.Equal(t, "print(x)\n", string(data))

	assert.NoFileExists(t, client+".bak")
	assert.Empty(t, Find(res))
}

func TestRevertMissingBackup(t *testing.T) {
	res, client, _ := setup(t)
	entries := Find(res)
	require.NoError(t, os.Remove(client+".bak"))

	out := New(nil).Revert(entries)
	assert.Equal(t, 1, out.Done)
	require.Contains(t, out.Failed, client)
	assert.Error(t, out.Err())
}

func TestClean(t *testing.T) {
	res, client, _ := setup(t)

	out := New(nil).Clean(Find(res))
	assert.Equal(t, 2, out.Done)
	assert.NoError(t, out.Err())

	data, err := os.ReadFile(client)
	require.NoError(t, err)
	assert.Equal(t, "t[#t+1] = v\n", string(data), "scripts are kept")
	assert.Empty(t, Find(res))
}
