// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package filename turns partner-supplied attachment names into storage-safe
// object names.
package filename

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// namespace scopes the name-based UUIDs produced by Encode. Changing it
// changes every encoded name, so it is fixed.
var namespace = uuid.MustParse("7d1c54a2-3f0e-4b8e-9a61-2f4c8e0b9d35")

var safeExt = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// Encode returns a deterministic, one-way, URL-safe name for name: a SHA-1
// name-based UUID followed by the lowercased original extension. Extensions
// that are not short alphanumerics are dropped.
func Encode(name string) string {
	id := uuid.NewSHA1(namespace, []byte(name)).String()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" || !safeExt.MatchString(ext) {
		return id
	}
	return id + "." + ext
}

// ForClient prefixes an encoded name with the client slug, e.g.
// "breadfast_2f0c...pdf".
func ForClient(slug, name string) string {
	return slug + "_" + Encode(name)
}
