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

package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"

	// ReadOnlyScope is the only scope the intake needs.
	ReadOnlyScope = "https://www.googleapis.com/auth/gmail.readonly"
)

// Credentials identify an installed-app OAuth client plus a long-lived
// refresh token obtained once through the consent flow.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	TokenURL     string `json:"token_uri"`
}

// LoadCredentials reads an authorized-user token file (the token.json
// written by Google's consent tools).
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read token file: %w", err)
	}
	// Some editors prepend a UTF-8 BOM.
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))

	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("parse token file %s: %w", path, err)
	}
	return c, nil
}

// Validate reports missing fields.
func (c Credentials) Validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("gmail credentials: client_id is required")
	case c.ClientSecret == "":
		return errors.New("gmail credentials: client_secret is required")
	case c.RefreshToken == "":
		return errors.New("gmail credentials: refresh_token is required")
	}
	return nil
}

// NewHTTPClient returns an HTTP client whose transport refreshes access
// tokens automatically from the refresh token.
func NewHTTPClient(ctx context.Context, c Credentials) (*http.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}

	conf := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleAuthURL,
			TokenURL: tokenURL,
		},
		Scopes: []string{ReadOnlyScope},
	}
	return conf.Client(ctx, &oauth2.Token{RefreshToken: c.RefreshToken}), nil
}
