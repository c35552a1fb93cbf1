package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/publication"
)

type call struct {
	method string
	params map[string]any
}

// fakeAPI answers Bot API calls and records them in order.
type fakeAPI struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	params := map[string]any{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		_ = r.ParseMultipartForm(1 << 20)
		for k, v := range r.MultipartForm.Value {
			params[k] = v[0]
		}
	} else {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &params)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call{method: method, params: params})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if method == "getMe" {
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Gabriel","username":"gabriel_bot"}}`)
		return
	}
	fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100,"type":"supergroup"}}}`)
}

func (f *fakeAPI) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func newSender(t *testing.T) (*Sender, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)
	raw := fmt.Sprintf(`{"token":"123:abc","api_url":%q,"rate_per_sec":1000}`, ts.URL)
	dst, err := New(modules.Env{Module: Module, Key: "main"}, json.RawMessage(raw))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := dst.(*Sender)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return s, api
}

func TestDeliverPhotoWithCaptionThenExtras(t *testing.T) {
	t.Parallel()
	s, api := newSender(t)
	p := &publication.Publication{
		ID:          "1",
		Title:       "Set <1>",
		URL:         "https://example.com/1",
		Description: "<p>Out now</p>",
		Images: []publication.File{
			{PublicURL: "https://example.com/a.png"},
			{PublicURL: "https://example.com/b.png"},
		},
		Files:  []publication.File{{PublicURL: "https://example.com/rules.pdf", PrettyName: "Rules v2"}},
		Fields: []publication.Field{{Name: "Release", Value: "May"}},
	}
	if err := s.Deliver(context.Background(), "-100/5", p); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	got := api.methods()
	want := []string{"getMe", "sendPhoto", "sendPhoto", "sendDocument"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	first := api.calls[1].params
	caption, _ := first["caption"].(string)
	if !strings.Contains(caption, "<b>Set &lt;1&gt;</b>") || !strings.Contains(caption, "Out now") || !strings.Contains(caption, "<b>Release:</b> May") {
		t.Fatalf("caption = %q", caption)
	}
	if fmt.Sprint(first["message_thread_id"]) != "5" {
		t.Fatalf("thread id = %v", first["message_thread_id"])
	}
}

func TestDeliverLongTextSplits(t *testing.T) {
	t.Parallel()
	s, api := newSender(t)
	p := &publication.Publication{ID: "2", Title: "Long", Description: strings.Repeat("word ", 1800)}
	if err := s.Deliver(context.Background(), "42", p); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	got := api.methods()
	if len(got) != 4 || got[1] != "sendMessage" || got[3] != "sendMessage" {
		t.Fatalf("calls = %v", got)
	}
}

func TestDeliverRequiresConnect(t *testing.T) {
	t.Parallel()
	dst, err := New(modules.Env{Module: Module, Key: "main"}, json.RawMessage(`{"token":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := dst.Deliver(context.Background(), "1", &publication.Publication{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestParseChannel(t *testing.T) {
	t.Parallel()
	chat, thread, err := ParseChannel("-1001234/77")
	if err != nil || chat != -1001234 || thread != 77 {
		t.Fatalf("ParseChannel = %d, %d, %v", chat, thread, err)
	}
	for _, bad := range []string{"", "@name", "1/x", "1/0"} {
		if _, _, err := ParseChannel(bad); err == nil {
			t.Fatalf("ParseChannel(%q) expected error", bad)
		}
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{`{}`, `{"token":"x","parse_mode":"Markdown"}`, `{"token":"x","timeout":"soon"}`} {
		if _, err := New(modules.Env{Module: Module, Key: "k"}, json.RawMessage(raw)); err == nil {
			t.Fatalf("New(%s) expected error", raw)
		}
	}
}
