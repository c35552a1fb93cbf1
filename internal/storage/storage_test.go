package storage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exerciseStore(t *testing.T, st IdentifierStore) {
	t.Helper()
	ctx := context.Background()

	ids, err := st.LoadAll(ctx, "rss")
	if err != nil {
		t.Fatalf("LoadAll empty: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("LoadAll on empty store = %v", ids)
	}
	for _, id := range []string{"5", "6", "7", "6"} {
		if err := st.Create(ctx, "rss", id); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}
	if err := st.Create(ctx, "html_list", "5"); err != nil {
		t.Fatalf("Create other source: %v", err)
	}

	ids, err = st.LoadAll(ctx, "rss")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if want := []string{"5", "6", "7"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("LoadAll(rss) = %v, want %v", ids, want)
	}
	ids, _ = st.LoadAll(ctx, "html_list")
	if len(ids) != 1 {
		t.Fatalf("LoadAll(html_list) = %v", ids)
	}

	// Ids are stored byte for byte, the same way the seen-set holds them.
	if err := st.Create(ctx, "json_feed", " 9 "); err != nil {
		t.Fatalf("Create padded id: %v", err)
	}
	if ids, _ = st.LoadAll(ctx, "json_feed"); len(ids) != 1 || ids[0] != " 9 " {
		t.Fatalf("LoadAll(json_feed) = %q, want [\" 9 \"]", ids)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	exerciseStore(t, st)
	_ = st.Close()
	if _, err := st.LoadAll(context.Background(), "rss"); err != ErrClosed {
		t.Fatalf("LoadAll after close = %v, want ErrClosed", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ids", "identifiers.db")
	st, err := Open(Config{Driver: "file", Path: path}, logxNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	exerciseStore(t, st)

	// Simulate a crash: append a torn line and reopen without Close.
	jp := filepath.Join(filepath.Dir(path), "identifiers.journal.jsonl")
	f, err := os.OpenFile(jp, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	_, _ = f.WriteString(`{"source":"rss","id":"8`)
	_ = f.Close()

	again, err := Open(Config{Driver: "file", Path: path}, logxNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	ids, err := again.LoadAll(context.Background(), "rss")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if want := []string{"5", "6", "7"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("after reopen = %v, want %v", ids, want)
	}
	if err := again.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), "identifiers.snapshot.json")); err != nil {
		t.Fatalf("snapshot not written on close: %v", err)
	}

	third, err := Open(Config{Driver: "file", Path: path}, logxNop())
	if err != nil {
		t.Fatalf("third open: %v", err)
	}
	defer third.Close()
	ids, _ = third.LoadAll(context.Background(), "html_list")
	if len(ids) != 1 || ids[0] != "5" {
		t.Fatalf("snapshot reload = %v", ids)
	}
	if ids, _ = third.LoadAll(context.Background(), "json_feed"); len(ids) != 1 || ids[0] != " 9 " {
		t.Fatalf("padded id after reload = %q", ids)
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "identifiers.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logxNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	exerciseStore(t, st)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	again, err := Open(Config{Driver: "sqlite", Path: path}, logxNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	ids, err := again.LoadAll(context.Background(), "rss")
	if err != nil || len(ids) != 3 {
		t.Fatalf("reopen LoadAll = %v, %v", ids, err)
	}
}

func TestRedisStore(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	st, err := Open(Config{Driver: "redis", Redis: RedisConfig{Addr: mr.Addr(), Prefix: "test:"}}, logxNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	exerciseStore(t, st)
	if !mr.Exists("test:rss") {
		t.Fatal("expected key test:rss")
	}
}

func TestNewRedisDefaultPrefix(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := NewRedis(client, "", logxNop())
	defer st.Close()
	if err := st.Create(context.Background(), "rss", "1"); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("gabriel:ids:rss") {
		t.Fatal("expected default prefix")
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()
	cases := []Config{
		{Driver: "mongo"},
		{Driver: "file"},
		{Driver: "sqlite"},
		{Driver: "redis"},
	}
	for _, cfg := range cases {
		if _, err := Open(cfg, logxNop()); err == nil {
			t.Fatalf("Open(%+v) expected error", cfg)
		}
	}
}
