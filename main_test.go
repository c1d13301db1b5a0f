package main

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"probedb/pkg/db"
)

func TestRunScript(t *testing.T) {
	dir := t.TempDir()
	engine, err := db.Open(db.Config{
		DBFile:         filepath.Join(dir, "data.db"),
		MetaFile:       filepath.Join(dir, "meta.json"),
		PoolSize:       4,
		DefaultBuckets: 8,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	defer engine.Close()

	script := strings.Join([]string{
		"create idx",
		"use idx",
		"insert 3 4",
		"",
		"get 3",
		"bogus",
		"quit",
		"get 3",
	}, "\n")
	var out bytes.Buffer
	require.NoError(t, run(engine.NewSession(), strings.NewReader(script), &out))

	got := out.String()
	assert.Contains(t, got, "[3] 4")
	assert.Contains(t, got, "Error: syntax error or unknown command: bogus")
	assert.Equal(t, 1, strings.Count(got, "[3] 4"), "commands after quit must not run")
}
