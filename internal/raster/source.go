/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	applog "listingstudio/internal/log"
)

// maxSourceBytes bounds a single remote fetch.
const maxSourceBytes = 64 << 20

// SourceCache owns the bytes and decoded pixels of every source the session
// touches. Remote images are copied into a local buffer before decoding;
// if the fetch fails, the reference is opened directly instead.
type SourceCache struct {
	client *http.Client
	log    *slog.Logger

	mu     sync.RWMutex
	bufs   map[string][]byte
	images map[string]image.Image
}

func NewSourceCache(client *http.Client) *SourceCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &SourceCache{
		client: client,
		log:    applog.WithComponent("sources"),
		bufs:   make(map[string][]byte),
		images: make(map[string]image.Image),
	}
}

// Load returns the decoded image for ref, fetching it on first use.
func (c *SourceCache) Load(ctx context.Context, ref string) (image.Image, error) {
	c.mu.RLock()
	img, ok := c.images[ref]
	c.mu.RUnlock()
	if ok {
		return img, nil
	}

	data, err := c.read(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrSource, ref, err)
	}

	c.mu.Lock()
	c.bufs[ref] = data
	c.images[ref] = img
	c.mu.Unlock()
	return img, nil
}

// Bytes returns the raw source bytes held for ref, if loaded.
func (c *SourceCache) Bytes(ref string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bufs[ref]
	return b, ok
}

// Release drops the buffers held for ref.
func (c *SourceCache) Release(ref string) {
	c.mu.Lock()
	delete(c.bufs, ref)
	delete(c.images, ref)
	c.mu.Unlock()
}

// Close drops every buffer. The cache stays usable.
func (c *SourceCache) Close() {
	c.mu.Lock()
	c.bufs = make(map[string][]byte)
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

func (c *SourceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

func (c *SourceCache) read(ctx context.Context, ref string) ([]byte, error) {
	if isRemote(ref) {
		data, err := c.fetch(ctx, ref)
		if err != nil {
			c.log.Warn("fetch failed", "ref", ref, "err", err)
			return nil, fmt.Errorf("%w: %s: %v", ErrSource, ref, err)
		}
		return data, nil
	}
	data, err := readDirect(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSource, ref, err)
	}
	return data, nil
}

func (c *SourceCache) fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxSourceBytes {
		return nil, fmt.Errorf("source larger than %d bytes", maxSourceBytes)
	}
	return data, nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// readDirect opens ref as a local path or file:// URL.
func readDirect(ref string) ([]byte, error) {
	path := ref
	if u, err := url.Parse(ref); err == nil && len(u.Scheme) > 1 {
		if u.Scheme != "file" {
			return nil, fmt.Errorf("no direct access for scheme %q", u.Scheme)
		}
		path = u.Path
	}
	return os.ReadFile(path)
}
