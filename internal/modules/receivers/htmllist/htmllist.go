// Package htmllist polls an HTML listing page and turns its items into
// publications. It covers both link lists (news pages with optional detail
// pages) and image galleries (banners, daily cards) where each image is one
// publication.
package htmllist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/fetch"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/internal/publication"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const Module = "html_list"

const (
	IDFromLink  = "link"
	IDFromImage = "image"
)

type Options struct {
	// URL may contain {search}, replaced by the query-escaped Search value.
	URL    string `json:"url"`
	Search string `json:"search"`

	ItemSelector  string `json:"item_selector"`
	LinkSelector  string `json:"link_selector"`
	TitleSelector string `json:"title_selector"`
	// DescriptionSelector is read from the item when no detail page is fetched.
	DescriptionSelector string `json:"description_selector"`
	// DetailSelector enables fetching same-host item links; the matched
	// element becomes the description and its images are attached.
	DetailSelector string   `json:"detail_selector"`
	ImageSelector  string   `json:"image_selector"`
	BannedAlt      []string `json:"banned_alt"`

	Title  string              `json:"title"`
	Sort   string              `json:"sort"`
	Author *publication.Author `json:"author"`
	IDFrom string              `json:"id_from"`

	UniqueNames *bool `json:"unique_names"`
	PublicURL   *bool `json:"public_url"`
}

func (o *Options) normalize() error {
	if strings.TrimSpace(o.URL) == "" {
		return errors.New("url is required")
	}
	if strings.TrimSpace(o.ItemSelector) == "" {
		return errors.New("item_selector is required")
	}
	if o.LinkSelector == "" {
		o.LinkSelector = "a"
	}
	if o.TitleSelector == "" {
		o.TitleSelector = ".title"
	}
	if o.ImageSelector == "" {
		o.ImageSelector = "img"
	}
	switch strings.ToLower(strings.TrimSpace(o.Sort)) {
	case "", "none":
		o.Sort = "none"
	case "title":
		o.Sort = "title"
	default:
		return fmt.Errorf("sort: unknown value %q", o.Sort)
	}
	switch strings.ToLower(strings.TrimSpace(o.IDFrom)) {
	case "", IDFromLink:
		o.IDFrom = IDFromLink
	case IDFromImage:
		o.IDFrom = IDFromImage
	default:
		return fmt.Errorf("id_from: unknown value %q", o.IDFrom)
	}
	return nil
}

type Receiver struct {
	name   string
	opts   Options
	page   *url.URL
	colour publication.Colour
	client *fetch.Client
	files  *fetch.Downloader
	log    logx.Logger
	banned map[string]bool
	now    func() time.Time
}

// New builds an html_list receiver from its instance options.
func New(env modules.Env, raw json.RawMessage) (pipeline.Pollable, error) {
	var opts Options
	if err := config.DecodeStrict(raw, &opts); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	target := strings.ReplaceAll(opts.URL, "{search}", url.QueryEscape(opts.Search))
	page, err := url.Parse(target)
	if err != nil || page.Host == "" {
		return nil, fmt.Errorf("url: invalid %q", target)
	}

	client := env.Fetch
	if client == nil {
		client = fetch.New(fetch.Config{})
	}
	files := env.Files
	if files == nil {
		files = fetch.NewDownloader(client, "", false)
	}
	log := env.Log
	if log.IsZero() {
		log = logx.Nop()
	}

	banned := map[string]bool{}
	for _, alt := range opts.BannedAlt {
		banned[alt] = true
	}
	return &Receiver{
		name:   env.Source(),
		opts:   opts,
		page:   page,
		colour: env.Colour,
		client: client,
		files:  files,
		log:    log,
		banned: banned,
		now:    time.Now,
	}, nil
}

func (r *Receiver) Name() string { return r.name }

// Poll reads the listing page. Items already in seen are skipped before any
// detail page or file is fetched. A failing item is logged and left for the
// next poll; a failing listing page fails the whole poll.
func (r *Receiver) Poll(ctx context.Context, seen *pipeline.SeenSet) ([]publication.Transaction, error) {
	resp, err := r.client.Get(ctx, r.page.String())
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.page, err)
	}

	var pubs []*publication.Publication
	doc.Find(r.opts.ItemSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if ctx.Err() != nil {
			return false
		}
		var (
			got []*publication.Publication
			err error
		)
		if r.opts.IDFrom == IDFromImage {
			got, err = r.images(ctx, item, seen)
		} else {
			var p *publication.Publication
			p, err = r.link(ctx, item, seen)
			if p != nil {
				got = append(got, p)
			}
		}
		if err != nil {
			r.log.Warn("item skipped", logx.Err(err))
		}
		pubs = append(pubs, got...)
		return true
	})
	if err := ctx.Err(); err != nil {
		return nil, err
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

func (r *Receiver) link(ctx context.Context, item *goquery.Selection, seen *pipeline.SeenSet) (*publication.Publication, error) {
	href, ok := item.Find(r.opts.LinkSelector).First().Attr("href")
	if !ok && goquery.NodeName(item) == "a" {
		href, ok = item.Attr("href")
	}
	if !ok || strings.TrimSpace(href) == "" {
		return nil, nil
	}
	link, err := r.resolve(href)
	if err != nil {
		return nil, err
	}
	id := link.String()
	if seen.Has(id) {
		return nil, nil
	}

	title := strings.TrimSpace(item.Find(r.opts.TitleSelector).First().Text())
	if title == "" {
		title = r.opts.Title
	}
	p := r.newPublication(id, title, id)
	fo := r.fileOptions(title)

	switch {
	case r.opts.DetailSelector != "" && link.Host == r.page.Host:
		ct, err := r.client.ContentType(ctx, id)
		if err != nil {
			return nil, err
		}
		if ct != "text/html" {
			f, err := r.files.File(ctx, id, fo)
			if err != nil {
				return nil, err
			}
			p.Files = append(p.Files, f)
			break
		}
		if err := r.detail(ctx, p, title); err != nil {
			return nil, err
		}
	case r.opts.DetailSelector != "":
		// Off-site link: the item's own image stands in for the page.
		if src, ok := item.Find(r.opts.ImageSelector).First().Attr("src"); ok {
			f, err := r.imageFile(ctx, stripQuery(src), fo)
			if err != nil {
				return nil, err
			}
			p.Images = append(p.Images, f)
		}
	default:
		if r.opts.DescriptionSelector != "" {
			p.Description = strings.TrimSpace(item.Find(r.opts.DescriptionSelector).First().Text())
		}
		imgs, err := r.collectImages(ctx, item, fo)
		if err != nil {
			return nil, err
		}
		p.Images = imgs
	}
	return p, nil
}

func (r *Receiver) detail(ctx context.Context, p *publication.Publication, title string) error {
	resp, err := r.client.Get(ctx, p.URL)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", p.URL, err)
	}
	content := doc.Find(r.opts.DetailSelector).First()
	if content.Length() == 0 {
		return nil
	}
	content.Find("script").Remove()
	html, err := goquery.OuterHtml(content)
	if err != nil {
		return err
	}
	p.Description = strings.TrimSpace(html)
	p.Images, err = r.collectImages(ctx, content, r.fileOptions(title))
	return err
}

// collectImages returns the images under sel, skipping banned alt texts and
// repeated URLs.
func (r *Receiver) collectImages(ctx context.Context, sel *goquery.Selection, fo fetch.FileOptions) ([]publication.File, error) {
	var (
		out  []publication.File
		seen = map[string]bool{}
		err  error
	)
	sel.Find(r.opts.ImageSelector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if alt, ok := img.Attr("alt"); ok && r.banned[alt] {
			return true
		}
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return true
		}
		src = stripQuery(src)
		if seen[src] {
			return true
		}
		seen[src] = true
		var f publication.File
		f, err = r.imageFile(ctx, src, fo)
		if err != nil {
			return false
		}
		out = append(out, f)
		return true
	})
	return out, err
}

// images emits one publication per image under item, identified by the
// image file name.
func (r *Receiver) images(ctx context.Context, item *goquery.Selection, seen *pipeline.SeenSet) ([]*publication.Publication, error) {
	imgs := item.Find(r.opts.ImageSelector)
	if goquery.NodeName(item) == "img" {
		imgs = item
	}
	target := r.page.String()
	if href, ok := item.Find(r.opts.LinkSelector).First().Attr("href"); ok {
		if u, err := r.resolve(href); err == nil {
			target = u.String()
		}
	}

	var (
		out []*publication.Publication
		err error
	)
	imgs.EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return true
		}
		id := fetch.FilenameFromURL(src)
		if seen.Has(id) {
			return true
		}
		title := r.opts.Title
		if alt, ok := img.Attr("alt"); ok && strings.TrimSpace(alt) != "" && title == "" {
			title = strings.TrimSpace(alt)
		}
		var f publication.File
		f, err = r.imageFile(ctx, src, r.fileOptions(title))
		if err != nil {
			return false
		}
		p := r.newPublication(id, title, target)
		p.Images = []publication.File{f}
		out = append(out, p)
		return true
	})
	return out, err
}

func (r *Receiver) imageFile(ctx context.Context, src string, fo fetch.FileOptions) (publication.File, error) {
	u, err := r.resolve(src)
	if err != nil {
		return publication.File{}, err
	}
	return r.files.File(ctx, u.String(), fo)
}

func (r *Receiver) newPublication(id, title, link string) *publication.Publication {
	return &publication.Publication{
		ID:        id,
		Title:     title,
		URL:       link,
		Timestamp: r.now().UTC(),
		Colour:    r.colour,
		Author:    r.opts.Author,
	}
}

func (r *Receiver) fileOptions(title string) fetch.FileOptions {
	return fetch.FileOptions{
		PrettyName:    title,
		UniqueName:    boolOr(r.opts.UniqueNames, true),
		KeepPublicURL: boolOr(r.opts.PublicURL, true),
	}
}

func (r *Receiver) resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", ref, err)
	}
	return r.page.ResolveReference(u), nil
}

func stripQuery(s string) string {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i]
	}
	return s
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
