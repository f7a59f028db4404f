package ignition

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fcosConfig = `variant: fcos
version: 1.5.0
passwd:
  users:
    - name: vagrant
      groups:
        - wheel
storage:
  files:
    - path: /etc/hostname
      mode: 0644
      contents:
        inline: vm1
    - path: /etc/motd
      mode: 0644
      contents:
        local: motd.txt
`

func TestTranslateFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "motd.txt"), []byte("provisioned by boxwright\n"), 0644))
	path := filepath.Join(dir, "vm1.bu")
	require.NoError(t, os.WriteFile(path, []byte(fcosConfig), 0644))

	out, err := NewTranslator(false, logr.Discard()).TranslateFile(path)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &parsed))

	ign, ok := parsed["ignition"].(map[string]interface{})
	require.True(t, ok, "ignition section should exist")
	assert.Equal(t, "3.4.0", ign["version"])

	storage := parsed["storage"].(map[string]interface{})
	files := storage["files"].([]interface{})
	assert.Len(t, files, 2)
}

func TestTranslate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		errMsg string
	}{
		{
			name:   "not yaml",
			config: "variant: fcos\nversion: [",
			errMsg: "failed to translate butane config",
		},
		{
			name:   "unknown variant",
			config: "variant: nope\nversion: 1.0.0\n",
			errMsg: "failed to translate butane config",
		},
		{
			name:   "missing local file",
			config: "variant: fcos\nversion: 1.5.0\nstorage:\n  files:\n    - path: /etc/motd\n      contents:\n        local: missing.txt\n",
			errMsg: "butane",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTranslator(false, logr.Discard()).Translate([]byte(tt.config), t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestTranslateFile_Missing(t *testing.T) {
	_, err := NewTranslator(false, logr.Discard()).TranslateFile(filepath.Join(t.TempDir(), "nope.bu"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read butane config")
}

func TestValidate(t *testing.T) {
	tr := NewTranslator(false, logr.Discard())

	assert.NoError(t, tr.Validate([]byte(`{"ignition":{"version":"3.4.0"}}`)))
	assert.Error(t, tr.Validate([]byte(`{"ignition":{"version":"9.9.9"}}`)))
	assert.Error(t, tr.Validate([]byte(`not json`)))
}
