////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	jww "github.com/spf13/jwalterweatherman"
)

// maxPreviewBody caps how much of a page is read looking for metadata.
const maxPreviewBody = 512 * 1024

// maxThumbnailSize caps a downloaded thumbnail.
const maxThumbnailSize = 4 * 1024 * 1024

// HTTPFetcher is a best-effort Fetcher over plain HTTP: it reads the page's
// <title> and og:image tags and caches the image under cacheDir. Every
// failure degrades to a partial or nil Preview, never an error.
type HTTPFetcher struct {
	client   *http.Client
	cacheDir string
}

// NewHTTPFetcher builds a fetcher caching thumbnails under cacheDir.
func NewHTTPFetcher(timeout time.Duration, cacheDir string) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
	}
}

// FetchPreview adheres to the Fetcher interface.
func (f *HTTPFetcher) FetchPreview(url string) *Preview {
	resp, err := f.client.Get(url)
	if err != nil {
		jww.DEBUG.Printf("Preview fetch of %s failed: %+v", url, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPreviewBody))
	if err != nil {
		return nil
	}
	page := string(body)

	p := &Preview{Title: extractTitle(page)}
	if img := extractMetaContent(page, "og:image"); img != "" {
		p.ThumbnailPath = f.cacheThumbnail(img)
	}
	if p.Title == "" && p.ThumbnailPath == "" {
		return nil
	}
	return p
}

// cacheThumbnail downloads the image to a content-addressed file under the
// cache directory. Empty on any failure.
func (f *HTTPFetcher) cacheThumbnail(imgURL string) string {
	resp, err := f.client.Get(imgURL)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailSize))
	if err != nil || len(data) == 0 {
		return ""
	}

	if err = os.MkdirAll(f.cacheDir, 0700); err != nil {
		return ""
	}
	sum := sha256.Sum256([]byte(imgURL))
	path := filepath.Join(f.cacheDir, hex.EncodeToString(sum[:16]))
	if err = os.WriteFile(path, data, 0600); err != nil {
		return ""
	}
	return path
}

// extractTitle pulls the first <title> element out of an HTML page.
func extractTitle(page string) string {
	lower := strings.ToLower(page)
	start := strings.Index(lower, "<title")
	if start < 0 {
		return ""
	}
	open := strings.Index(lower[start:], ">")
	if open < 0 {
		return ""
	}
	start += open + 1
	end := strings.Index(lower[start:], "</title>")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(page[start : start+end])
}

// extractMetaContent pulls the content attribute of a <meta property=...>
// tag. Handles the attribute orderings real pages use, nothing fancier.
func extractMetaContent(page, property string) string {
	lower := strings.ToLower(page)
	needle := `property="` + property + `"`
	idx := strings.Index(lower, needle)
	if idx < 0 {
		needle = `name="` + property + `"`
		idx = strings.Index(lower, needle)
		if idx < 0 {
			return ""
		}
	}

	// The content attribute can precede or follow the property attribute;
	// bound the search to the enclosing tag.
	tagStart := strings.LastIndex(lower[:idx], "<meta")
	if tagStart < 0 {
		return ""
	}
	tagEnd := strings.Index(lower[tagStart:], ">")
	if tagEnd < 0 {
		return ""
	}
	tag := page[tagStart : tagStart+tagEnd]
	tagLower := lower[tagStart : tagStart+tagEnd]

	cIdx := strings.Index(tagLower, `content="`)
	if cIdx < 0 {
		return ""
	}
	cIdx += len(`content="`)
	cEnd := strings.Index(tag[cIdx:], `"`)
	if cEnd < 0 {
		return ""
	}
	return strings.TrimSpace(tag[cIdx : cIdx+cEnd])
}
