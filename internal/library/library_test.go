package library

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(n), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListSortsNumericFirst(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "series", "chapter-1"),
		"10.jpg", "2.png", "001.jpg", "cover.webp", "b.GIF", "notes.txt", "a.jpeg")
	if err := os.Mkdir(filepath.Join(root, "series", "chapter-1", "99.jpg"), 0755); err != nil {
		t.Fatal(err)
	}

	lib := New(root)
	got, err := lib.List("series", "chapter-1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"001.jpg", "2.png", "10.jpg", "a.jpeg", "b.GIF", "cover.webp"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestListWithoutSlug(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "default_chapter"), "000.jpg")

	got, err := New(root).List("", "default_chapter")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"000.jpg"}) {
		t.Fatalf("got %v", got)
	}
}

func TestListEmptyFolder(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "s", "chapter-2"))

	got, err := New(root).List("s", "chapter-2")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
}

func TestListMissingChapter(t *testing.T) {
	_, err := New(t.TempDir()).List("s", "chapter-404")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListChapterIsAFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "s"), "chapter-1")

	_, err := New(root).List("s", "chapter-1")
	if !errors.Is(err, ErrChapterNotFound) {
		t.Fatalf("expected ErrChapterNotFound, got %v", err)
	}
}

func TestImage(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "s", "chapter-1"), "001.jpg")
	lib := New(root)

	p, err := lib.Image("s", "chapter-1", "001.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join(root, "s", "chapter-1", "001.jpg") {
		t.Fatalf("unexpected path %s", p)
	}

	if _, err := lib.Image("s", "chapter-1", "002.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing image: expected ErrNotFound, got %v", err)
	}
	if _, err := lib.Image("s", "chapter-9", "001.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing chapter: expected ErrNotFound, got %v", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "s", "chapter-1"), "001.jpg")
	lib := New(root)

	cases := []struct{ slug, chapter, file string }{
		{"..", "chapter-1", "001.jpg"},
		{"s", "../s", "001.jpg"},
		{"s", "chapter-1", "../../etc/passwd"},
		{"s", "..", "001.jpg"},
		{"s", "", "001.jpg"},
	}
	for _, c := range cases {
		if _, err := lib.Image(c.slug, c.chapter, c.file); !errors.Is(err, ErrInvalidName) {
			t.Errorf("%+v: expected ErrInvalidName, got %v", c, err)
		}
	}
}

func TestNotFoundKinds(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "s", "chapter-1"), "001.jpg")
	lib := New(root)

	_, err := lib.Image("s", "chapter-2", "001.jpg")
	if !errors.Is(err, ErrChapterNotFound) || errors.Is(err, ErrImageNotFound) {
		t.Errorf("expected chapter not found, got %v", err)
	}
	_, err = lib.Image("s", "chapter-1", "009.jpg")
	if !errors.Is(err, ErrImageNotFound) || errors.Is(err, ErrChapterNotFound) {
		t.Errorf("expected image not found, got %v", err)
	}
}
