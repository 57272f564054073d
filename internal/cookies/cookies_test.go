// SPDX-License-Identifier: MIT

package cookies

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recwatch/recwatch/internal/errcode"
)

func TestLoadEmptyPath(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestLoadValidBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sessionid":"abc","tt_csrf":"xyz"}`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sessionid": "abc", "tt_csrf": "xyz"}, c)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, errcode.CookiesInvalid, errcode.KindOf(err))
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sessionid":`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, errcode.CookiesInvalid, errcode.KindOf(err))
}
