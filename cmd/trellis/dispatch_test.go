package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client": {"id": "c-1"}}`), 0o600))

	tests := []struct {
		name     string
		raw      string
		expected map[string]any
		wantErr  bool
	}{
		{name: "inline", raw: `{"status": "vip"}`, expected: map[string]any{"status": "vip"}},
		{name: "empty object", raw: `{}`, expected: map[string]any{}},
		{name: "from file", raw: "@" + path, expected: map[string]any{"client": map[string]any{"id": "c-1"}}},
		{name: "not an object", raw: `[1, 2]`, wantErr: true},
		{name: "missing file", raw: "@" + path + ".missing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := readPayload(tt.raw)

			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, payload)
		})
	}
}
