package reader

import (
	"strings"
	"testing"
)

func TestNewPageLinksImages(t *testing.T) {
	p := NewPage("solo leveling", "chapter-1", []string{"01.jpg", "02 (x).png"})

	if p.Title != "solo leveling - chapter-1" {
		t.Errorf("unexpected title %q", p.Title)
	}
	want := "/get_image?chapter=chapter-1&filename=02+%28x%29.png&slug=solo+leveling"
	if p.Images[1].URL != want {
		t.Errorf("got %q, want %q", p.Images[1].URL, want)
	}

	noSlug := NewPage("", "chapter-2", []string{"1.jpg"})
	if noSlug.Title != "chapter-2" || strings.Contains(noSlug.Images[0].URL, "slug=") {
		t.Errorf("unexpected page %+v", noSlug)
	}
}

func TestRender(t *testing.T) {
	var buf strings.Builder
	if err := Render(&buf, NewPage("s", "chapter-1", []string{"1.jpg", "2.jpg"})); err != nil {
		t.Fatal(err)
	}
	html := buf.String()
	if strings.Count(html, "<img ") != 2 || !strings.Contains(html, "2 images") {
		t.Errorf("unexpected html:\n%s", html)
	}
	// html/template escapes the query separator inside attributes.
	if !strings.Contains(html, `src="/get_image?chapter=chapter-1&amp;filename=1.jpg&amp;slug=s"`) {
		t.Errorf("image source not rendered:\n%s", html)
	}

	buf.Reset()
	if err := Render(&buf, NewPage("s", "<script>", nil)); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "<script>") || !strings.Contains(buf.String(), "No images saved") {
		t.Errorf("unexpected empty page:\n%s", buf.String())
	}
}
