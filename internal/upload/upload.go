/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package upload hands encoded images to wherever listing photos live and
// returns the reference that replaces the original.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	applog "listingstudio/internal/log"
	"listingstudio/internal/storage"
)

// Uploader stores data under a name derived from name and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// HTTPUploader POSTs images to <BaseURL>/api/uploads.
type HTTPUploader struct {
	BaseURL string
	// Token returns the bearer token per request; nil sends none.
	Token  func() (string, error)
	client *http.Client
	log    *slog.Logger
}

func NewHTTP(baseURL string, token func() (string, error), timeout time.Duration) *HTTPUploader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPUploader{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     applog.WithComponent("upload"),
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

func (u *HTTPUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	endpoint, err := url.Parse(u.BaseURL + "/api/uploads")
	if err != nil {
		return "", fmt.Errorf("upload base url: %w", err)
	}
	ext, ctype := detectFormat(data)
	q := endpoint.Query()
	q.Set("name", withExt(storage.Basename(name), ext))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", ctype)
	if u.Token != nil {
		tok, err := u.Token()
		if err != nil {
			return "", fmt.Errorf("upload token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload %s: server %s: %s", name, resp.Status, strings.TrimSpace(string(msg)))
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("upload %s: decode response: %w", name, err)
	}
	if out.URL == "" {
		return "", errors.New("upload: server returned no url")
	}
	u.log.Debug("uploaded", "name", name, "bytes", len(data), "url", out.URL)
	return out.URL, nil
}

// DirUploader writes images into a directory.
type DirUploader struct {
	Dir string
	log *slog.Logger
}

func NewDir(dir string) *DirUploader {
	return &DirUploader{Dir: dir, log: applog.WithComponent("upload")}
}

// Upload writes data under a unique file name and returns a file:// URL.
func (d *DirUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(d.Dir)
	if err != nil {
		return "", err
	}
	fname := UniqueName(name, data)
	path := filepath.Join(abs, fname)
	if err := storage.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	d.log.Debug("stored", "path", path, "bytes", len(data))
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

// UniqueName keeps the base name of name and adds a short random suffix so
// re-saves never overwrite an earlier upload. The extension follows the
// encoded bytes, not the original file name.
func UniqueName(name string, data []byte) string {
	ext, _ := detectFormat(data)
	stem := stemOf(storage.Basename(name))
	return fmt.Sprintf("%s-%s%s", sanitize(stem), uuid.NewString()[:8], ext)
}

func stemOf(base string) string {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return "image"
	}
	return stem
}

func withExt(base, ext string) string { return stemOf(base) + ext }

// detectFormat sniffs the encoded image; anything that is not PNG is treated
// as the pipeline's default JPEG output.
func detectFormat(data []byte) (ext, contentType string) {
	if http.DetectContentType(data) == "image/png" {
		return ".png", "image/png"
	}
	return ".jpg", "image/jpeg"
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ReadFileURL reads back a file:// URL produced by DirUploader.
func ReadFileURL(ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "file" {
		return nil, fmt.Errorf("not a file url: %s", ref)
	}
	return os.ReadFile(filepath.FromSlash(u.Path))
}
