package jsonfeed

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

const catalog = `{"data":{"products":[
  {"sku":"B-2","name":"Zeta box","href":"/p/2","pics":["/i/2a.jpg","/i/2b.jpg"],"release":"2024-06-01","deadline":"2024-05-20","ts":1717200000},
  {"sku":"B-1","name":"Alpha box","href":"/p/1","pics":[],"release":"2024-07-01"},
  {"sku":"","name":"broken"},
  {"sku":"B-0","name":"Known"}
]}}`

const feed = `{"version":"https://jsonfeed.org/version/1.1","items":[
  {"id":"1","title":"Hello","url":"https://blog.example/1","content_html":"<p>hi</p>","image":"https://blog.example/1.png","date_published":"2024-05-01T10:00:00Z"}
]}`

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestPollCatalogPaths(t *testing.T) {
	t.Parallel()
	ts := serve(t, catalog)
	opts := map[string]any{
		"url":        ts.URL + "/api/products",
		"items_path": "data.products",
		"id_path":    "sku",
		"title_path": "name",
		"url_path":   "href",
		"image_path": "pics",
		"time_path":  "ts",
		"sort":       "title",
		"fields":     map[string]string{"Release date": "release", "Order deadline": "deadline"},
	}
	raw, _ := json.Marshal(opts)
	src, err := New(modules.Env{Module: Module, Key: "shop"}, raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	txs, err := src.Poll(context.Background(), pipeline.NewSeenSet([]string{"B-0"}))
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(txs) != 2 || txs[0].ID != "B-1" || txs[1].ID != "B-2" {
		t.Fatalf("transactions = %+v", txs)
	}
	z := txs[1].Publications[0]
	if z.URL != ts.URL+"/p/2" || len(z.Images) != 2 || z.Images[1].PublicURL != ts.URL+"/i/2b.jpg" {
		t.Fatalf("publication = %+v", z)
	}
	if !z.Timestamp.Equal(time.Unix(1717200000, 0)) {
		t.Fatalf("timestamp = %v", z.Timestamp)
	}
	if len(z.Fields) != 2 || z.Fields[0].Name != "Order deadline" || z.Fields[1].Value != "2024-06-01" {
		t.Fatalf("fields = %+v", z.Fields)
	}
	if a := txs[0].Publications[0]; len(a.Fields) != 1 || len(a.Images) != 0 {
		t.Fatalf("alpha = %+v", a)
	}
}

func TestPollJSONFeedDefaults(t *testing.T) {
	t.Parallel()
	ts := serve(t, feed)
	src, err := New(modules.Env{Module: Module, Key: "blog"}, json.RawMessage(fmt.Sprintf(`{"url":%q}`, ts.URL)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	txs, err := src.Poll(context.Background(), pipeline.NewSeenSet(nil))
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions", len(txs))
	}
	p := txs[0].Publications[0]
	if p.Title != "Hello" || p.Description != "<p>hi</p>" || len(p.Images) != 1 {
		t.Fatalf("publication = %+v", p)
	}
	if want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC); !p.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v", p.Timestamp)
	}
}

func TestPollRejectsNonArray(t *testing.T) {
	t.Parallel()
	ts := serve(t, `{"items":{"a":1}}`)
	src, err := New(modules.Env{Module: Module, Key: "x"}, json.RawMessage(fmt.Sprintf(`{"url":%q}`, ts.URL)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Poll(context.Background(), pipeline.NewSeenSet(nil)); err == nil {
		t.Fatal("expected error")
	}
}
