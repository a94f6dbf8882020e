// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package denoise

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 4, c.Radius)
	assert.Equal(t, 40, c.Threshold)
	assert.False(t, c.InvertFlow)
	assert.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	tcs := []struct {
		name   string
		modify func(c *Config)
	}{
		{"radius", func(c *Config) { c.Radius = -1 }},
		{"threshold", func(c *Config) { c.Threshold = -5 }},
		{"threads", func(c *Config) { c.MaxThreads = -2 }},
		{"pattern", func(c *Config) { c.FlowOut = "flow.png" }},
	}
	for _, tc := range tcs {
		c := DefaultConfig()
		tc.modify(&c)
		assert.ErrorIs(t, c.Validate(), ErrInvalidInput, tc.name)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	yamlName := filepath.Join(dir, "mctf.yaml")
	require.NoError(t, os.WriteFile(yamlName, []byte("radius: 2\ninvertFlow: true\nhornSchunck:\n  alpha: 25\n"), 0o644))
	c, err := LoadConfig(yamlName)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Radius)
	assert.Equal(t, 40, c.Threshold) // default kept
	assert.True(t, c.InvertFlow)
	assert.Equal(t, 25.0, c.HornSchunck.Alpha)
	assert.Equal(t, 160, c.HornSchunck.Iterations)

	jsonName := filepath.Join(dir, "mctf.json")
	require.NoError(t, os.WriteFile(jsonName, []byte(`{"threshold": 12, "smoothFlow": true}`), 0o644))
	c, err = LoadConfig(jsonName)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Radius)
	assert.Equal(t, 12, c.Threshold)
	assert.True(t, c.SmoothFlow)

	badName := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(badName, []byte("radius: -3\n"), 0o644))
	_, err = LoadConfig(badName)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = LoadConfig(filepath.Join(dir, "mctf.toml"))
	assert.Error(t, err)
}

func TestConfigUnmarshalJSONDefaults(t *testing.T) {
	var c Config
	require.NoError(t, json.Unmarshal([]byte(`{"radius": 1}`), &c))
	assert.Equal(t, 1, c.Radius)
	assert.Equal(t, 40, c.Threshold)
}
