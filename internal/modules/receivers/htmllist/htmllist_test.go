package htmllist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rcomino/gabriel-messenger/internal/fetch"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
)

const listing = `<html><body>
<ul class="info-list">
  <li><a href="/news/1"><span class="title"> First </span></a></li>
  <li><a href="/files/rules.pdf?v=2"><span class="title">Rules</span></a></li>
  <li><a href="https://elsewhere.example/x"><img src="/img/ext.png?x=1"><span class="title">Elsewhere</span></a></li>
  <li><a href="/news/old"><span class="title">Old</span></a></li>
</ul>
<div class="slide-banner"><img src="/img/b1.png"><img src="/img/b2.png?v=9"></div>
</body></html>`

const detail = `<html><body><div class="entry-content">
<p>Hello</p><script>alert(1)</script>
<img src="/img/a.png?w=1"><img src="/img/a.png"><img src="/img/fb.png" alt="FB_icon">
</div></body></html>`

func newSite(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var detailHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, listing)
	})
	mux.HandleFunc("/news/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			detailHits.Add(1)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, detail)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, &detailHits
}

func newReceiver(t *testing.T, opts map[string]any) pipeline.Pollable {
	t.Helper()
	raw, err := json.Marshal(opts)
	if err != nil {
		t.Fatal(err)
	}
	client := fetch.New(fetch.Config{})
	src, err := New(modules.Env{
		Module: Module,
		Key:    "news",
		Fetch:  client,
		Files:  fetch.NewDownloader(client, t.TempDir(), false),
	}, raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return src
}

func TestPollLinkListWithDetailPages(t *testing.T) {
	t.Parallel()
	ts, hits := newSite(t)
	src := newReceiver(t, map[string]any{
		"url":             ts.URL + "/list",
		"item_selector":   "ul.info-list li",
		"detail_selector": ".entry-content",
		"banned_alt":      []string{"FB_icon"},
		"author":          map[string]string{"name": "News"},
	})
	if src.Name() != "html_list/news" {
		t.Fatalf("Name = %q", src.Name())
	}

	seen := pipeline.NewSeenSet([]string{ts.URL + "/news/old"})
	txs, err := src.Poll(context.Background(), seen)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txs))
	}
	if hits.Load() != 1 {
		t.Fatalf("detail pages fetched = %d, want 1 (cached item skipped)", hits.Load())
	}

	first := txs[0].Publications[0]
	if txs[0].ID != ts.URL+"/news/1" || first.Title != "First" || first.Author == nil || first.Author.Name != "News" {
		t.Fatalf("first = %+v", first)
	}
	if strings.Contains(first.Description, "alert") || !strings.Contains(first.Description, "Hello") {
		t.Fatalf("description = %q", first.Description)
	}
	if len(first.Images) != 1 || first.Images[0].PublicURL != ts.URL+"/img/a.png" {
		t.Fatalf("images = %+v", first.Images)
	}

	rules := txs[1].Publications[0]
	if len(rules.Files) != 1 || len(rules.Images) != 0 || rules.Files[0].PrettyName != "Rules" {
		t.Fatalf("non-html link should become a file: %+v", rules)
	}

	ext := txs[2].Publications[0]
	if txs[2].ID != "https://elsewhere.example/x" || len(ext.Images) != 1 || ext.Images[0].PublicURL != ts.URL+"/img/ext.png" {
		t.Fatalf("off-site item = %+v", ext)
	}
}

func TestPollImagesByFilename(t *testing.T) {
	t.Parallel()
	ts, _ := newSite(t)
	src := newReceiver(t, map[string]any{
		"url":           ts.URL + "/list",
		"item_selector": "div.slide-banner",
		"id_from":       "image",
		"title":         "Banner",
	})
	txs, err := src.Poll(context.Background(), pipeline.NewSeenSet([]string{"b1.png"}))
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "b2.png" {
		t.Fatalf("transactions = %+v", txs)
	}
	p := txs[0].Publications[0]
	if p.Title != "Banner" || p.URL != ts.URL+"/list" || len(p.Images) != 1 {
		t.Fatalf("publication = %+v", p)
	}
}

func TestPollListingFailure(t *testing.T) {
	t.Parallel()
	ts, _ := newSite(t)
	src := newReceiver(t, map[string]any{"url": ts.URL + "/missing", "item_selector": "li"})
	if _, err := src.Poll(context.Background(), pipeline.NewSeenSet(nil)); err == nil {
		t.Fatal("expected error for missing listing page")
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	t.Parallel()
	for name, raw := range map[string]string{
		"no url":      `{"item_selector":"li"}`,
		"no selector": `{"url":"https://x.example"}`,
		"bad sort":    `{"url":"https://x.example","item_selector":"li","sort":"date"}`,
		"unknown key": `{"url":"https://x.example","item_selector":"li","colour":"red"}`,
	} {
		if _, err := New(modules.Env{Module: Module, Key: "k"}, json.RawMessage(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestSearchPlaceholder(t *testing.T) {
	t.Parallel()
	src, err := New(modules.Env{Module: Module, Key: "k"}, json.RawMessage(`{"url":"https://x.example/list?q={search}","search":"weiss schwarz","item_selector":"li"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := src.(*Receiver).page.String(); got != "https://x.example/list?q=weiss+schwarz" {
		t.Fatalf("page = %q", got)
	}
}
