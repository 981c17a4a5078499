package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestArgs(t *testing.T) {
	assert.Equal(t, []string{"-test.v", "-test.short", "-test.count=1", "-test.parallel=1"}, testArgs(true, true, 1, 1))
	assert.Equal(t, []string{}, testArgs(false, false, 0, 0))
}

func TestCollectTestBinaries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "api", "router"), 0o755))
	for _, name := range []string{"api/router.test", "api/config.test", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), nil, 0o755))
	}

	bins, err := collectTestBinaries(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "api", "config.test"),
		filepath.Join(dir, "api", "router.test"),
	}, bins)

	assert.Equal(t, filepath.Join(dir, "api", "router"), packageDir(bins[1], "/fallback"))
	assert.Equal(t, "/fallback", packageDir(bins[0], "/fallback"))
}

func TestRunBinaries_ReportsEveryFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses shell scripts")
	}
	dir := t.TempDir()
	script := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
		return path
	}
	ok := script("ok.test", "exit 0")
	bad1 := script("bad1.test", "exit 1")
	bad2 := script("bad2.test", "exit 2")

	var out, errOut bytes.Buffer
	require.NoError(t, runBinaries([]string{ok}, nil, 2, dir, &out, &errOut))

	err := runBinaries([]string{ok, bad1, bad2}, nil, 2, dir, &lockedWriter{w: &out}, &lockedWriter{w: &errOut})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad1.test failed")
	assert.Contains(t, err.Error(), "bad2.test failed")
}
