package rss

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
)

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel><title>Shop</title>
<item>
  <title>New booster</title>
  <link>/products/1</link>
  <guid>product-1</guid>
  <description>Preorders open</description>
  <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
  <dc:creator>Staff</dc:creator>
  <enclosure url="/img/1.jpg" type="image/jpeg"/>
  <enclosure url="/docs/1.pdf" type="application/pdf"/>
</item>
<item>
  <title>Old</title>
  <link>https://shop.example/products/0</link>
</item>
<item>
  <title>Third</title>
  <guid>product-3</guid>
</item>
</channel></rss>`

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Blog</title>
  <entry>
    <title>Hello</title>
    <id>urn:entry:1</id>
    <link rel="alternate" href="https://blog.example/hello"/>
    <updated>2024-05-01T10:00:00Z</updated>
    <summary>Hi there</summary>
    <author><name>Ana</name></author>
  </entry>
</feed>`

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newReceiver(t *testing.T, raw string) pipeline.Pollable {
	t.Helper()
	src, err := New(modules.Env{Module: Module, Key: "feed"}, json.RawMessage(raw))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return src
}

func TestPollRSS(t *testing.T) {
	t.Parallel()
	ts := serve(t, rssFeed)
	src := newReceiver(t, fmt.Sprintf(`{"url":%q}`, ts.URL+"/feed.xml"))

	txs, err := src.Poll(context.Background(), pipeline.NewSeenSet([]string{"https://shop.example/products/0"}))
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(txs) != 2 || txs[0].ID != "product-1" || txs[1].ID != "product-3" {
		t.Fatalf("transactions = %+v", txs)
	}
	p := txs[0].Publications[0]
	if p.URL != ts.URL+"/products/1" || p.Description != "Preorders open" {
		t.Fatalf("publication = %+v", p)
	}
	if want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC); !p.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", p.Timestamp, want)
	}
	if p.Author == nil || p.Author.Name != "Staff" {
		t.Fatalf("author = %+v", p.Author)
	}
	if len(p.Images) != 1 || p.Images[0].PublicURL != ts.URL+"/img/1.jpg" {
		t.Fatalf("images = %+v", p.Images)
	}
	if len(p.Files) != 1 || p.Files[0].PublicURL != ts.URL+"/docs/1.pdf" {
		t.Fatalf("files = %+v", p.Files)
	}
}

func TestPollAtomWithMaxItems(t *testing.T) {
	t.Parallel()
	ts := serve(t, atomFeed)
	src := newReceiver(t, fmt.Sprintf(`{"url":%q,"max_items":1,"enclosures":false}`, ts.URL))

	txs, err := src.Poll(context.Background(), pipeline.NewSeenSet(nil))
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions", len(txs))
	}
	p := txs[0].Publications[0]
	if p.ID != "urn:entry:1" || p.URL != "https://blog.example/hello" || p.Title != "Hello" || p.Description != "Hi there" {
		t.Fatalf("publication = %+v", p)
	}
	if p.Author == nil || p.Author.Name != "Ana" {
		t.Fatalf("author = %+v", p.Author)
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{`{}`, `{"url":"https://x.example","max_items":-1}`, `{"url":"nope"}`, `{"url":"https://x.example","extra":1}`} {
		if _, err := New(modules.Env{Module: Module, Key: "k"}, json.RawMessage(raw)); err == nil {
			t.Fatalf("New(%s) expected error", raw)
		}
	}
}
