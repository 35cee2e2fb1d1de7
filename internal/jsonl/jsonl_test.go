package jsonl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.jsonl")
	records, err := Marshal([]map[string]any{
		{"id": 1, "name": "admins"},
		{"id": 2, "name": "editors"},
	})
	require.NoError(t, err)
	require.NoError(t, Write(path, records))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"id":1,"name":"admins"}`, string(got[0]))
	assert.JSONEq(t, `{"id":2,"name":"editors"}`, string(got[1]))
}

func TestWriteReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"old\":true}\n{\"old\":true}\n"), 0o644))

	require.NoError(t, Write(path, []json.RawMessage{json.RawMessage(`{"new":true}`)}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"new\":true}\n", string(data))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".jsonl-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files must be renamed or removed")
}

func TestReadSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n\n{\"a\":2}\n"), 0o644))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReadRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\nnot json\n"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
