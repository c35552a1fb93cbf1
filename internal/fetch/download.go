package fetch

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/rcomino/gabriel-messenger/internal/publication"
)

// FileOptions control how one remote file is referenced.
type FileOptions struct {
	PrettyName string
	// UniqueName means the remote file name is unique within the source.
	// Otherwise the stored name is the blake2b hash of the content.
	UniqueName bool
	// KeepPublicURL keeps the remote URL next to the local path so senders
	// can choose between linking and uploading.
	KeepPublicURL bool
}

// Downloader turns remote URLs into publication.File values. When disabled it
// only references the URL.
type Downloader struct {
	client  *Client
	dir     string
	enabled bool
}

func NewDownloader(client *Client, dir string, enabled bool) *Downloader {
	return &Downloader{client: client, dir: dir, enabled: enabled}
}

func (d *Downloader) Enabled() bool { return d != nil && d.enabled }

// File returns a reference to url, downloading it first when enabled.
func (d *Downloader) File(ctx context.Context, url string, opts FileOptions) (publication.File, error) {
	if !d.Enabled() {
		return publication.File{PublicURL: url, PrettyName: opts.PrettyName}, nil
	}

	resp, err := d.client.Get(ctx, url)
	if err != nil {
		return publication.File{}, err
	}

	name := FilenameFromURL(url)
	if !usableName(name) {
		name = ""
	}
	if !opts.UniqueName || name == "" {
		sum := blake2b.Sum512(resp.Body)
		name = hex.EncodeToString(sum[:]) + path.Ext(name)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return publication.File{}, err
	}
	p := filepath.Join(d.dir, name)
	if err := os.WriteFile(p, resp.Body, 0o644); err != nil {
		return publication.File{}, fmt.Errorf("store %s: %w", url, err)
	}

	f := publication.File{Path: p, PrettyName: opts.PrettyName}
	if opts.KeepPublicURL {
		f.PublicURL = url
	}
	return f, nil
}

// usableName rejects URL base names that do not name a file inside the
// download directory.
func usableName(name string) bool {
	switch name {
	case "", ".", "..", "/":
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// FilenameFromURL returns the last path element of url without query or fragment.
func FilenameFromURL(url string) string {
	return publication.File{PublicURL: url}.Filename()
}
