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

package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAlsoToFile(t *testing.T) {
	dir := t.TempDir()
	first, second := filepath.Join(dir, "first.log"), filepath.Join(dir, "second.log")

	require.NoError(t, LogAlsoToFile(first))
	LogPrintf("frame %d\n", 7)
	require.NoError(t, LogAlsoToFile(second)) // flushes and closes the first file
	LogPrintln("done")
	LogSync()

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "frame 7\n", string(data))
	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "done\n", string(data))

	logMutex.Lock()
	assert.NoError(t, closeLogFile())
	logMutex.Unlock()
	assert.Error(t, LogAlsoToFile(filepath.Join(dir, "missing", "x.log")))
}
