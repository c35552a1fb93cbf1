// Package rss polls RSS 2.0 and Atom feeds.
package rss

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/araddon/dateparse"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/fetch"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/internal/publication"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const Module = "rss"

const itemsXPath = `//*[local-name()='item' or local-name()='entry']`

type Options struct {
	URL string `json:"url"`
	// MaxItems limits how many feed entries are read per poll; 0 reads all.
	MaxItems int                 `json:"max_items"`
	Author   *publication.Author `json:"author"`
	// Enclosures attaches enclosure and media links as images or files.
	Enclosures *bool `json:"enclosures"`
}

type Receiver struct {
	name   string
	opts   Options
	feed   *url.URL
	colour publication.Colour
	client *fetch.Client
	files  *fetch.Downloader
	loc    *time.Location
	log    logx.Logger
	now    func() time.Time
}

func New(env modules.Env, raw json.RawMessage) (pipeline.Pollable, error) {
	var opts Options
	if err := config.DecodeStrict(raw, &opts); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("url is required")
	}
	if opts.MaxItems < 0 {
		return nil, errors.New("max_items must be >= 0")
	}
	feed, err := url.Parse(opts.URL)
	if err != nil || feed.Host == "" {
		return nil, fmt.Errorf("url: invalid %q", opts.URL)
	}

	client := env.Fetch
	if client == nil {
		client = fetch.New(fetch.Config{})
	}
	files := env.Files
	if files == nil {
		files = fetch.NewDownloader(client, "", false)
	}
	loc := env.Location
	if loc == nil {
		loc = time.UTC
	}
	log := env.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Receiver{
		name:   env.Source(),
		opts:   opts,
		feed:   feed,
		colour: env.Colour,
		client: client,
		files:  files,
		loc:    loc,
		log:    log,
		now:    time.Now,
	}, nil
}

func (r *Receiver) Name() string { return r.name }

func (r *Receiver) Poll(ctx context.Context, seen *pipeline.SeenSet) ([]publication.Transaction, error) {
	resp, err := r.client.Get(ctx, r.feed.String())
	if err != nil {
		return nil, err
	}
	doc, err := xmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.feed, err)
	}
	items, err := xmlquery.QueryAll(doc, itemsXPath)
	if err != nil {
		return nil, err
	}
	if r.opts.MaxItems > 0 && len(items) > r.opts.MaxItems {
		items = items[:r.opts.MaxItems]
	}

	out := make([]publication.Transaction, 0, len(items))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		link := r.link(it)
		id := childText(it, "guid", "id")
		if id == "" {
			id = link
		}
		if id == "" || seen.Has(id) {
			continue
		}
		p, err := r.publication(ctx, it, id, link)
		if err != nil {
			r.log.Warn("entry skipped", logx.String("id", id), logx.Err(err))
			continue
		}
		out = append(out, publication.Single(p))
	}
	return out, nil
}

func (r *Receiver) publication(ctx context.Context, it *xmlquery.Node, id, link string) (*publication.Publication, error) {
	title := childText(it, "title")
	p := &publication.Publication{
		ID:          id,
		Title:       title,
		Description: childText(it, "description", "summary", "content", "encoded"),
		URL:         link,
		Timestamp:   r.now().UTC(),
		Colour:      r.colour,
		Author:      r.opts.Author,
	}
	if ts := childText(it, "pubDate", "published", "updated", "date"); ts != "" {
		if t, err := dateparse.ParseIn(ts, r.loc); err == nil {
			p.Timestamp = t.UTC()
		} else {
			r.log.Debug("unparsed entry date", logx.String("value", ts))
		}
	}
	if p.Author == nil {
		if name := authorName(it); name != "" {
			p.Author = &publication.Author{Name: name}
		}
	}

	if r.opts.Enclosures != nil && !*r.opts.Enclosures {
		return p, nil
	}
	for _, enc := range enclosures(it) {
		u, err := r.feed.Parse(enc.url)
		if err != nil {
			continue
		}
		f, err := r.files.File(ctx, u.String(), fetch.FileOptions{PrettyName: title, UniqueName: true, KeepPublicURL: true})
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(enc.typ, "image/") || (enc.typ == "" && enc.media) {
			p.Images = append(p.Images, f)
		} else {
			p.Files = append(p.Files, f)
		}
	}
	return p, nil
}

// link returns the RSS <link> text or the Atom alternate link href.
func (r *Receiver) link(it *xmlquery.Node) string {
	for c := it.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode || c.Data != "link" {
			continue
		}
		if href := c.SelectAttr("href"); href != "" {
			if rel := c.SelectAttr("rel"); rel != "" && rel != "alternate" {
				continue
			}
			return r.absolute(href)
		}
		if s := strings.TrimSpace(c.InnerText()); s != "" {
			return r.absolute(s)
		}
	}
	return ""
}

func (r *Receiver) absolute(ref string) string {
	u, err := r.feed.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return u.String()
}

type enclosure struct {
	url   string
	typ   string
	media bool
}

func enclosures(it *xmlquery.Node) []enclosure {
	var out []enclosure
	seen := map[string]bool{}
	for c := it.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		var e enclosure
		switch {
		case c.Data == "enclosure":
			e = enclosure{url: c.SelectAttr("url"), typ: c.SelectAttr("type")}
		case c.Data == "link" && c.SelectAttr("rel") == "enclosure":
			e = enclosure{url: c.SelectAttr("href"), typ: c.SelectAttr("type")}
		case c.Prefix == "media" && (c.Data == "content" || c.Data == "thumbnail"):
			e = enclosure{url: c.SelectAttr("url"), typ: c.SelectAttr("type"), media: true}
		default:
			continue
		}
		if e.url == "" || seen[e.url] {
			continue
		}
		seen[e.url] = true
		out = append(out, e)
	}
	return out
}

func authorName(it *xmlquery.Node) string {
	for c := it.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		switch c.Data {
		case "author":
			if name := childText(c, "name"); name != "" {
				return name
			}
			return strings.TrimSpace(c.InnerText())
		case "creator":
			return strings.TrimSpace(c.InnerText())
		}
	}
	return ""
}

// childText returns the trimmed text of the first direct child whose local
// name matches one of names, in the order names are given.
func childText(n *xmlquery.Node, names ...string) string {
	for _, name := range names {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode && c.Data == name {
				if s := strings.TrimSpace(c.InnerText()); s != "" {
					return s
				}
			}
		}
	}
	return ""
}
