package render

import (
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	t.Parallel()
	in := `<div class="entry-content"><p>Hello   <b>world</b></p>
	<script>alert(1)</script>
	<ul><li>one</li><li>two</li></ul><p>bye &amp; thanks</p></div>`
	got := Text(in)
	want := "Hello world\n\n• one\n• two\n\nbye & thanks"
	if got != want {
		t.Fatalf("Text =\n%q\nwant\n%q", got, want)
	}
	if got := Text("  plain\n    text  "); got != "plain\ntext" {
		t.Fatalf("plain Text = %q", got)
	}
}

func TestSplit(t *testing.T) {
	t.Parallel()
	if got := Split("short", 10, false); len(got) != 1 || got[0] != "short" {
		t.Fatalf("Split short = %q", got)
	}

	text := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 30)
	got := Split(text, 40, false)
	if len(got) != 2 || got[0] != strings.Repeat("a", 30) || got[1] != strings.Repeat("b", 30) {
		t.Fatalf("Split on newline = %q", got)
	}

	long := strings.Repeat("x", 95)
	got = Split(long, 40, false)
	if len(got) != 3 || len([]rune(got[0])) != 40 || len([]rune(got[2])) != 15 {
		t.Fatalf("Split hard = %d chunks", len(got))
	}

	tagged := strings.Repeat("y", 38) + "<b>bold</b>"
	got = Split(tagged, 40, true)
	if !strings.HasPrefix(got[1], "<b>") {
		t.Fatalf("Split cut inside tag: %q", got)
	}

	for _, c := range Split(strings.Repeat("é", 100), 30, false) {
		if n := len([]rune(c)); n > 30 {
			t.Fatalf("chunk of %d runes exceeds limit", n)
		}
	}
}
