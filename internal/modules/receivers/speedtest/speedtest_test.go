package speedtest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
)

type fakeRun struct {
	res Result
	err error
}

func (f fakeRun) Measure(context.Context) (Result, error) { return f.res, f.err }

var env = modules.Env{Module: Module, Key: "home", Location: time.UTC}

func newTestReceiver(t *testing.T, raw string, run measurer) *Receiver {
	t.Helper()
	p, err := New(env, json.RawMessage(raw))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := p.(*Receiver)
	r.run = run
	return r
}

var sample = Result{
	Timestamp:     time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	DownloadMbps:  93.24,
	UploadMbps:    8.5,
	Ping:          12 * time.Millisecond,
	Jitter:        2 * time.Millisecond,
	ISP:           "Example ISP",
	ServerName:    "Example",
	ServerCountry: "ES",
}

func TestPollReportsEveryRunWithoutLimits(t *testing.T) {
	t.Parallel()
	r := newTestReceiver(t, `{}`, fakeRun{res: sample})
	txs, err := r.Poll(context.Background(), pipeline.NewSeenSet(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions", len(txs))
	}
	p := txs[0].Publications[0]
	if p.ID != "run@1714550400" {
		t.Fatalf("ID = %q", p.ID)
	}
	if p.Title != "Speedtest: 93.2 Mbps down / 8.5 Mbps up" || p.Description != "" {
		t.Fatalf("unexpected publication: %+v", p)
	}
	if p.Fields[2].Value != "Example (ES)" {
		t.Fatalf("fields = %+v", p.Fields)
	}
}

func TestPollOnlyReportsBreaches(t *testing.T) {
	t.Parallel()
	r := newTestReceiver(t, `{"min_download_mbps": 50, "max_ping": "50ms"}`, fakeRun{res: sample})
	txs, err := r.Poll(context.Background(), pipeline.NewSeenSet(nil))
	if err != nil || len(txs) != 0 {
		t.Fatalf("healthy run reported: %v %v", txs, err)
	}

	r = newTestReceiver(t, `{"min_upload_mbps": 20, "max_ping": "10ms"}`, fakeRun{res: sample})
	txs, err = r.Poll(context.Background(), pipeline.NewSeenSet(nil))
	if err != nil || len(txs) != 1 {
		t.Fatalf("breach not reported: %v %v", txs, err)
	}
	desc := txs[0].Publications[0].Description
	if !strings.Contains(desc, "upload below 20.0 Mbps") || !strings.Contains(desc, "ping above 10ms") {
		t.Fatalf("description = %q", desc)
	}
}

func TestPollFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("no servers available")
	r := newTestReceiver(t, `{}`, fakeRun{err: boom})
	if _, err := r.Poll(context.Background(), pipeline.NewSeenSet(nil)); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{`{"candidates":-1}`, `{"min_upload_mbps":-5}`, `{"max_ping":"soon"}`, `{"extra":true}`} {
		if _, err := New(env, json.RawMessage(raw)); err == nil {
			t.Fatalf("New(%s) expected error", raw)
		}
	}
	p, err := New(env, json.RawMessage(`{"candidates":2,"full_tests":5}`))
	if err != nil {
		t.Fatal(err)
	}
	cfg := p.(*Receiver).run.(*runner).cfg
	if cfg.Candidates != 2 || cfg.FullTests != 2 || cfg.MaxConnections != 4 {
		t.Fatalf("cfg = %+v", cfg)
	}
}
