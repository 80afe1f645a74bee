package ld

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScheme(t *testing.T) {
	tests := map[string]string{
		"https://example.org/a.jsonld":  "https",
		"HTTP://example.org/a.jsonld":   "http",
		"file:///tmp/a.jsonld":          "file",
		"testdata/a.jsonld":             "file",
		"/abs/a.jsonld":                 "file",
		`C:\activities\a.jsonld`:        "file",
		"oci://ghcr.io/org/act:v1/a.ld": "oci",
	}
	for ref, want := range tests {
		if got := Scheme(ref); got != want {
			t.Errorf("Scheme(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestNormalizeRef(t *testing.T) {
	got, err := NormalizeRef("testdata/activity_compact.jsonld")
	if err != nil {
		t.Fatalf("NormalizeRef failed: %v", err)
	}
	if !strings.HasPrefix(got, "file:///") {
		t.Errorf("expected absolute file URL, got %q", got)
	}
	if !strings.HasSuffix(got, "/testdata/activity_compact.jsonld") {
		t.Errorf("unexpected path in %q", got)
	}

	if got, _ := NormalizeRef("https://example.org/a"); got != "https://example.org/a" {
		t.Errorf("URLs should pass through, got %q", got)
	}

	if _, err := NormalizeRef(""); err == nil {
		t.Error("expected error for empty ref")
	}
}

func TestMuxFetcherRoutesByScheme(t *testing.T) {
	var got []string
	record := func(name string) Fetcher {
		return FetcherFunc(func(_ context.Context, ref string) ([]byte, error) {
			got = append(got, name+":"+ref)
			return []byte(name), nil
		})
	}

	mux := NewMuxFetcher()
	mux.Handle("https", record("web"))
	mux.Handle("FILE", record("disk"))

	ctx := context.Background()
	if _, err := mux.Fetch(ctx, "https://example.org/a"); err != nil {
		t.Fatalf("https fetch failed: %v", err)
	}
	if _, err := mux.Fetch(ctx, "file:///tmp/a"); err != nil {
		t.Fatalf("file fetch failed: %v", err)
	}
	if _, err := mux.Fetch(ctx, "relative/a.jsonld"); err != nil {
		t.Fatalf("bare path fetch failed: %v", err)
	}
	if _, err := mux.Fetch(ctx, "ftp://example.org/a"); err == nil {
		t.Error("expected error for unregistered scheme")
	}

	want := []string{"web:https://example.org/a", "disk:file:///tmp/a", "disk:relative/a.jsonld"}
	if len(got) != len(want) {
		t.Fatalf("got calls %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.jsonld")
	if err := os.WriteFile(path, []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ref, err := NormalizeRef(path)
	if err != nil {
		t.Fatal(err)
	}

	for _, r := range []string{ref, path} {
		data, err := FileFetcher{}.Fetch(context.Background(), r)
		if err != nil {
			t.Fatalf("Fetch(%q) failed: %v", r, err)
		}
		if string(data) != `{"ok":true}` {
			t.Errorf("Fetch(%q) = %q", r, data)
		}
	}

	if _, err := (FileFetcher{}).Fetch(context.Background(), filepath.Join(dir, "missing.jsonld")); err == nil {
		t.Error("expected error for missing file")
	}
}
