// Package jsonfeed polls JSON endpoints (catalog APIs, JSON Feed documents)
// using gjson paths to locate items and their fields.
package jsonfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/tidwall/gjson"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/fetch"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/internal/publication"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const Module = "json_feed"

type Options struct {
	URL string `json:"url"`
	// ItemsPath selects the item array; empty means the document root.
	ItemsPath       string            `json:"items_path"`
	IDPath          string            `json:"id_path"`
	TitlePath       string            `json:"title_path"`
	URLPath         string            `json:"url_path"`
	DescriptionPath string            `json:"description_path"`
	ImagePath       string            `json:"image_path"`
	TimePath        string            `json:"time_path"`
	Fields          map[string]string `json:"fields"`
	// Sort is "none" (default) or "title".
	Sort   string              `json:"sort"`
	Author *publication.Author `json:"author"`
}

// JSON Feed 1.1 defaults.
func (o *Options) normalize() error {
	if strings.TrimSpace(o.URL) == "" {
		return errors.New("url is required")
	}
	if o.ItemsPath == "" {
		o.ItemsPath = "items"
	}
	if o.IDPath == "" {
		o.IDPath = "id"
	}
	if o.TitlePath == "" {
		o.TitlePath = "title"
	}
	if o.URLPath == "" {
		o.URLPath = "url"
	}
	if o.DescriptionPath == "" {
		o.DescriptionPath = "content_html"
	}
	if o.ImagePath == "" {
		o.ImagePath = "image"
	}
	if o.TimePath == "" {
		o.TimePath = "date_published"
	}
	switch strings.ToLower(o.Sort) {
	case "", "none":
		o.Sort = "none"
	case "title":
		o.Sort = "title"
	default:
		return fmt.Errorf("sort: unknown value %q", o.Sort)
	}
	for name, path := range o.Fields {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(path) == "" {
			return errors.New("fields: empty name or path")
		}
	}
	return nil
}

type Receiver struct {
	name   string
	opts   Options
	base   *url.URL
	fields []string
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
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	base, err := url.Parse(opts.URL)
	if err != nil || base.Host == "" {
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
		base:   base,
		fields: config.SortedKeys(opts.Fields),
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
	resp, err := r.client.Get(ctx, r.base.String())
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, fmt.Errorf("parse %s: invalid json", r.base)
	}
	doc := gjson.ParseBytes(resp.Body)
	items := doc.Get(r.opts.ItemsPath)
	if r.opts.ItemsPath == "@this" || r.opts.ItemsPath == "." {
		items = doc
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("%s: %q is not an array", r.base, r.opts.ItemsPath)
	}

	var pubs []*publication.Publication
	for _, it := range items.Array() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := strings.TrimSpace(it.Get(r.opts.IDPath).String())
		if id == "" {
			r.log.Debug("item without id skipped")
			continue
		}
		if seen.Has(id) {
			continue
		}
		p, err := r.publication(ctx, it, id)
		if err != nil {
			r.log.Warn("item skipped", logx.String("id", id), logx.Err(err))
			continue
		}
		pubs = append(pubs, p)
	}
	if r.opts.Sort == "title" {
		sort.SliceStable(pubs, func(i, j int) bool { return pubs[i].Title < pubs[j].Title })
	}

	out := make([]publication.Transaction, 0, len(pubs))
	for _, p := range pubs {
		out = append(out, publication.Single(p))
	}
	return out, nil
}

func (r *Receiver) publication(ctx context.Context, it gjson.Result, id string) (*publication.Publication, error) {
	p := &publication.Publication{
		ID:          id,
		Title:       strings.TrimSpace(it.Get(r.opts.TitlePath).String()),
		Description: strings.TrimSpace(it.Get(r.opts.DescriptionPath).String()),
		Timestamp:   r.now().UTC(),
		Colour:      r.colour,
		Author:      r.opts.Author,
	}
	if link := it.Get(r.opts.URLPath).String(); link != "" {
		p.URL = r.absolute(link)
	}
	if ts := it.Get(r.opts.TimePath); ts.Exists() {
		switch ts.Type {
		case gjson.Number:
			p.Timestamp = time.Unix(ts.Int(), 0).UTC()
		default:
			t, err := dateparse.ParseIn(ts.String(), r.loc)
			if err != nil {
				r.log.Debug("unparsed item date", logx.String("value", ts.String()))
			} else {
				p.Timestamp = t.UTC()
			}
		}
	}
	for _, name := range r.fields {
		if v := strings.TrimSpace(it.Get(r.opts.Fields[name]).String()); v != "" {
			p.Fields = append(p.Fields, publication.Field{Name: name, Value: v})
		}
	}

	var imgs []string
	img := it.Get(r.opts.ImagePath)
	if img.IsArray() {
		for _, v := range img.Array() {
			imgs = append(imgs, v.String())
		}
	} else if img.String() != "" {
		imgs = append(imgs, img.String())
	}
	for _, src := range imgs {
		f, err := r.files.File(ctx, r.absolute(src), fetch.FileOptions{PrettyName: p.Title, UniqueName: true, KeepPublicURL: true})
		if err != nil {
			return nil, err
		}
		p.Images = append(p.Images, f)
	}
	return p, nil
}

func (r *Receiver) absolute(ref string) string {
	u, err := r.base.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return u.String()
}
