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

package models

// SearchTerms narrows a mailbox listing to likely purchase-order emails.
// A message matches when any subject phrase or any sender address matches.
// Empty terms mean "everything in the window".
type SearchTerms struct {
	Subjects []string
	Senders  []string
}

// Empty reports whether no narrowing term is set.
func (s SearchTerms) Empty() bool {
	return len(s.Subjects) == 0 && len(s.Senders) == 0
}
