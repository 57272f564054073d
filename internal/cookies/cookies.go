// SPDX-License-Identifier: MIT

// Package cookies loads cookie bundles referenced by job options. Path
// validation (traversal, suffix, charset) happens at the API layer before a
// reference reaches this package.
package cookies

import (
	"encoding/json"
	"os"

	"github.com/recwatch/recwatch/internal/errcode"
)

// Load reads and parses a JSON cookie bundle. An empty path yields nil
// cookies without error; any read or parse failure is a CookiesInvalid
// structured error.
func Load(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errcode.Wrap(errcode.CookiesInvalid, "read cookie bundle", err).
			WithDetail("path", path)
	}

	var cookies map[string]string
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, errcode.Wrap(errcode.CookiesInvalid, "parse cookie bundle", err).
			WithDetail("path", path)
	}
	return cookies, nil
}
