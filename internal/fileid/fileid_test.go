package fileid

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPathID(t *testing.T) {
	id1 := PathID("guides/aspirin.pdf")
	id2 := PathID("guides/aspirin.pdf")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, prefix) || len(id1) != len(prefix)+hashLen {
		t.Errorf("unexpected ID shape: %q", id1)
	}
	if PathID("guides/ibuprofen.pdf") == id1 {
		t.Error("different paths should give different IDs")
	}
}

func TestPathID_normalized(t *testing.T) {
	id := PathID("/foo/bar")
	for _, p := range []string{"/foo/bar/", "/foo/./bar", "/foo/baz/../bar"} {
		if got := PathID(p); got != id {
			t.Errorf("PathID(%q) = %q, want %q", p, got, id)
		}
	}
}

func TestDocID_relativeToRoot(t *testing.T) {
	a, err := DocID("/data/corpus", "/data/corpus/cardio/aspirin.pdf")
	if err != nil {
		t.Fatal(err)
	}
	b, err := DocID("/mnt/moved", "/mnt/moved/cardio/aspirin.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("moving the source root should keep IDs: %q vs %q", a, b)
	}
	if a != PathID("cardio/aspirin.pdf") {
		t.Errorf("DocID should hash the slash-separated relative path")
	}
}

func TestDocID_relativeRootFails(t *testing.T) {
	abs, _ := filepath.Abs(".")
	if _, err := DocID("relative", abs); err == nil {
		t.Error("expected error mixing relative root and absolute path")
	}
}
