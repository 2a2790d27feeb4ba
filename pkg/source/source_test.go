package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.lua")
	require.NoError(t, os.WriteFile(path, []byte("print(1)\n"), 0o644))

	var src ContentSource = NewFilesystem()
	content, err := src.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "print(1)\n", string(content))

	_, err = src.Read(filepath.Join(t.TempDir(), "missing.lua"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBillySource(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "resources/hud/client.lua", []byte("local ped = PlayerPedId()\n"), 0o644))

	var src ContentSource = NewBilly(fs)
	content, err := src.Read("resources/hud/client.lua")
	require.NoError(t, err)
	assert.Equal(t, "local ped = PlayerPedId()\n", string(content))

	_, err = src.Read("resources/hud/server.lua")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
