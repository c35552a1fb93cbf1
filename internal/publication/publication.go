// Package publication defines the content units that flow from receivers to senders.
//
// A Publication is immutable once handed to a router: every destination queue
// receives the same pointer, so neither receivers nor senders may modify it
// after Router.Put.
package publication

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Publication struct {
	// ID is unique within the producing source.
	ID          string
	Title       string
	Description string
	URL         string
	Timestamp   time.Time
	Colour      Colour
	Images      []File
	Files       []File
	Author      *Author
	Fields      []Field
}

// IntID formats a numeric source identity.
func IntID(id int64) string { return strconv.FormatInt(id, 10) }

type Author struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// Field is a source-specific extra (e.g. "Release date").
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// File references content that is either reachable by URL, stored locally, or both.
type File struct {
	PublicURL  string `json:"public_url,omitempty"`
	Path       string `json:"path,omitempty"`
	PrettyName string `json:"pretty_name,omitempty"`
}

// Filename returns the base name of the local path, or of the URL without query.
func (f File) Filename() string {
	if f.Path != "" {
		return path.Base(filepathSlash(f.Path))
	}
	return urlBase(f.PublicURL)
}

// PrettyFilename returns PrettyName with the original extension when PrettyName is set.
func (f File) PrettyFilename() string {
	name := f.Filename()
	if strings.TrimSpace(f.PrettyName) == "" {
		return name
	}
	ext := path.Ext(name)
	return f.PrettyName + ext
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

// SafeFilename is PrettyFilename reduced to characters accepted by chat uploads.
func (f File) SafeFilename() string {
	return unsafeFilename.ReplaceAllString(strings.ReplaceAll(f.PrettyFilename(), " ", "_"), "")
}

// Local reports whether the file has been downloaded.
func (f File) Local() bool { return f.Path != "" }

func urlBase(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")
	return path.Base(u)
}

func filepathSlash(p string) string { return strings.ReplaceAll(p, `\`, "/") }

// Transaction is an atomic batch of publications that share one dedup identity.
// Its ID is persisted only after every publication has been handed to the router.
type Transaction struct {
	ID           string
	Publications []*Publication
}

// Single wraps one publication in a transaction keyed by its own ID.
func Single(p *Publication) Transaction {
	return Transaction{ID: p.ID, Publications: []*Publication{p}}
}

// Colour is a 24-bit RGB display colour.
type Colour uint32

// ParseColour accepts "#rrggbb", "0xrrggbb", "rrggbb" or a decimal integer.
func ParseColour(s string) (Colour, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	low := strings.ToLower(s)
	var (
		v   uint64
		err error
	)
	switch {
	case strings.HasPrefix(low, "#"):
		v, err = strconv.ParseUint(low[1:], 16, 32)
	case strings.HasPrefix(low, "0x"):
		v, err = strconv.ParseUint(low[2:], 16, 32)
	case len(low) == 6 && strings.ContainsAny(low, "abcdef"):
		v, err = strconv.ParseUint(low, 16, 32)
	default:
		v, err = strconv.ParseUint(low, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	if v > 0xFFFFFF {
		return 0, fmt.Errorf("invalid colour %q: out of range", s)
	}
	return Colour(v), nil
}

func (c Colour) Hex() string { return fmt.Sprintf("#%06x", uint32(c)) }
