package metadata

import (
	"strings"
	"testing"
)

func TestExtract_TitlePage(t *testing.T) {
	t.Parallel()

	text := `Time, Clocks, and the Ordering of Events in a Distributed System
By Leslie Lamport
Published July 1978

Keywords: distributed systems, logical clocks; causality

The concept of one event happening before another...`

	rec := Extract(text)
	if rec.Title != "Time, Clocks, and the Ordering of Events in a Distributed System" {
		t.Errorf("title: got %q", rec.Title)
	}
	if rec.Author != "Leslie Lamport" {
		t.Errorf("author: got %q", rec.Author)
	}
	if rec.Published != "July 1978" {
		t.Errorf("published: got %q", rec.Published)
	}
	want := []string{"distributed systems", "logical clocks", "causality"}
	if len(rec.Keywords) != len(want) {
		t.Fatalf("keywords: got %v, want %v", rec.Keywords, want)
	}
	for i, kw := range want {
		if rec.Keywords[i] != kw {
			t.Errorf("keyword %d: got %q, want %q", i, rec.Keywords[i], kw)
		}
	}
}

func TestExtract_AuthorColonForm(t *testing.T) {
	t.Parallel()

	rec := Extract("Paxos Made Simple\nAuthor: L. Lamport\n2001-11-01\n")
	if rec.Author != "L. Lamport" {
		t.Errorf("author: got %q", rec.Author)
	}
	if rec.Published != "2001-11-01" {
		t.Errorf("published: got %q", rec.Published)
	}
}

func TestExtract_NoRecognizableMetadata(t *testing.T) {
	t.Parallel()

	// A wall of prose with no title page yields a best-effort title (the
	// first line) and nothing else — never an error.
	rec := Extract("some opening sentence of plain prose.\nmore prose follows here.\n")
	if rec.Author != "" || rec.Published != "" || rec.Keywords != nil {
		t.Errorf("expected only a title, got %+v", rec)
	}
}

func TestExtract_LongFirstLineNotTitle(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", maxTitleLen+1)
	rec := Extract(long + "\nActual Short Title\n")
	if rec.Title != "Actual Short Title" {
		t.Errorf("title: got %q, want the first short line", rec.Title)
	}
}

func TestExtract_CuesOutsideHeadIgnored(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("filler line\n", headScanLines)
	rec := Extract("Title Line\n" + body + "By Hidden Author\n")
	if rec.Author != "" {
		t.Errorf("author beyond the head scan should be ignored, got %q", rec.Author)
	}
}

func TestExtract_Empty(t *testing.T) {
	t.Parallel()

	rec := Extract("")
	if rec.Title != "" || rec.Author != "" || rec.Published != "" || rec.Keywords != nil {
		t.Errorf("expected empty record, got %+v", rec)
	}
	if m := rec.ToMap(); len(m) != 0 {
		t.Errorf("expected empty map, got %v", m)
	}
}

func TestToMap_OmitsEmptyFields(t *testing.T) {
	t.Parallel()

	m := Record{Title: "A Title", Keywords: []string{"a", "b"}}.ToMap()
	if m["title"] != "A Title" {
		t.Errorf("title: got %q", m["title"])
	}
	if m["keywords"] != "a, b" {
		t.Errorf("keywords: got %q", m["keywords"])
	}
	if _, ok := m["author"]; ok {
		t.Error("empty author must be omitted")
	}
	if _, ok := m["published"]; ok {
		t.Error("empty published must be omitted")
	}
}
