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

package attachments

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrEmptyBundle is returned when Bundle is asked to archive nothing.
var ErrEmptyBundle = errors.New("no files to bundle")

// Bundle writes files into a deflated zip archive in the given order.
// Entries carry no timestamps, so the same input always produces the same
// bytes. Repeated names get a " (n)" suffix before the extension.
func Bundle(files []File) ([]byte, error) {
	if len(files) == 0 {
		return nil, ErrEmptyBundle
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	used := make(map[string]int, len(files))
	for _, f := range files {
		name := memberName(f.Filename, used)

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   name,
			Method: zip.Deflate,
		})
		if err != nil {
			return nil, fmt.Errorf("create zip entry %q: %w", name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write zip entry %q: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalise zip: %w", err)
	}
	return buf.Bytes(), nil
}

// memberName strips any directory components and disambiguates repeats.
func memberName(name string, used map[string]int) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "attachment"
	}

	if used[base] == 0 {
		used[base] = 1
		return base
	}

	// A renamed entry can collide with a real attachment of that name.
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := used[base] + 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if used[candidate] == 0 {
			used[base] = n
			used[candidate] = 1
			return candidate
		}
	}
}
