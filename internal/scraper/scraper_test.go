package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ibeckermayer/tenshi/internal/types"
)

func TestImageURLsAcceptsStringOrArray(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"stringified", `"[\"https://cdn.x.org/1.jpg\",\" https://cdn.x.org/2.jpg \"]"`, []string{"https://cdn.x.org/1.jpg", "https://cdn.x.org/2.jpg"}},
		{"array", `["https://cdn.x.org/1.jpg", ""]`, []string{"https://cdn.x.org/1.jpg"}},
		{"empty array", `[]`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImageURLs(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	for _, bad := range []string{``, `""`, `"not json"`, `{"a":1}`} {
		if _, err := ImageURLs(json.RawMessage(bad)); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestResultText(t *testing.T) {
	if got := ResultText(json.RawMessage(`"Solo Leveling"`)); got != "Solo Leveling" {
		t.Errorf("got %q", got)
	}
	if got := ResultText(json.RawMessage(`[1,2]`)); got != "[1,2]" {
		t.Errorf("got %q", got)
	}
	if got := ResultText(nil); got != "" {
		t.Errorf("got %q", got)
	}
}

const readerHTML = `<html><body>
<div class="reading-content">
  <img class="wp-manga-chapter-img" src=" https://cdn.toongod.org/s/ch1/01.jpg ">
  <img class="wp-manga-chapter-img" data-src="https://cdn.toongod.org/s/ch1/02.jpg">
  <img class="wp-manga-chapter-img">
  <img class="other" src="https://cdn.toongod.org/banner.png">
</div>
</body></html>`

func TestImagesFromHTML(t *testing.T) {
	got, err := ImagesFromHTML(readerHTML, ChapterImage)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://cdn.toongod.org/s/ch1/01.jpg", "https://cdn.toongod.org/s/ch1/02.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

const seriesHTML = `<html><body>
<div class="post-title"><h1> Some Series </h1></div>
<ul class="main version-chap no-volumn active">
  <li class="wp-manga-chapter"><a href="/webtoon/some-series/chapter-3/">Chapter 3</a></li>
  <li class="wp-manga-chapter"><a href="https://toongod.org/webtoon/some-series/chapter-2-5/">Chapter 2.5</a></li>
  <li class="wp-manga-chapter"><a href="/webtoon/some-series/chapter-1/">Chapter 1 - Start</a></li>
  <li class="wp-manga-chapter"><span>locked</span></li>
</ul>
</body></html>`

func TestChaptersFromHTML(t *testing.T) {
	got, err := ChaptersFromHTML(seriesHTML, ChapterList, "https://toongod.org/webtoon/some-series/")
	if err != nil {
		t.Fatal(err)
	}
	want := []types.Chapter{
		{Title: "Chapter 3", Number: 3, URL: "https://toongod.org/webtoon/some-series/chapter-3/"},
		{Title: "Chapter 2.5", Number: 2.5, URL: "https://toongod.org/webtoon/some-series/chapter-2-5/"},
		{Title: "Chapter 1 - Start", Number: 1, URL: "https://toongod.org/webtoon/some-series/chapter-1/"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}

	title, err := TitleFromHTML(seriesHTML, SeriesTitle)
	if err != nil || title != "Some Series" {
		t.Fatalf("unexpected title %q, %v", title, err)
	}
}

func TestChaptersFromScriptResult(t *testing.T) {
	raw := json.RawMessage(`"[{\"title\":\"Chapter 4\",\"number\":4,\"url\":\"https://x.org/c4\"}]"`)
	got, err := Chapters(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Number != 4 || got[0].URL != "https://x.org/c4" {
		t.Fatalf("unexpected chapters %+v", got)
	}
}

func TestChapterNumber(t *testing.T) {
	tests := map[string]float64{
		"Chapter 12":        12,
		"chapter 7.5 - end": 7.5,
		"CHAPTER10":         10,
		"42":                42,
		"Prologue":          0,
	}
	for title, want := range tests {
		if got := ChapterNumber(title); got != want {
			t.Errorf("%q: got %v, want %v", title, got, want)
		}
	}
}

func TestChapterFolder(t *testing.T) {
	tests := map[string]string{
		"https://toongod.org/webtoon/series/chapter-12/":   "chapter-12",
		"https://toongod.org/webtoon/series/Chapter_3/p/2": "Chapter_3",
		"https://toongod.org/webtoon/series/":              DefaultChapterFolder,
		"https://toongod.org/":                             DefaultChapterFolder,
	}
	for in, want := range tests {
		if got := ChapterFolder(in); got != want {
			t.Errorf("%s: got %q, want %q", in, got, want)
		}
	}
}

func TestLastSegment(t *testing.T) {
	got, err := LastSegment("https://toongod.org/webtoon/series/chapter%2012%20%E5%A4%A9/")
	if err != nil {
		t.Fatal(err)
	}
	if got != "chapter 12 天" {
		t.Fatalf("got %q", got)
	}

	for _, bad := range []string{"https://toongod.org/", "https://toongod.org/a/..", "https://toongod.org/x/%2F"} {
		if _, err := LastSegment(bad); err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		src    string
		idx    int
		naming string
		want   string
	}{
		{"https://cdn.x.org/s/01.webp", 0, "source", "01.webp"},
		{"https://cdn.x.org/s/01.webp", 7, "index", "007.webp"},
		{"https://cdn.x.org/s/image", 2, "index", "002.jpg"},
		{"https://cdn.x.org/", 3, "source", "003.jpg"},
		{"https://cdn.x.org/s/page.png?v=2", 12, "source", "page.png"},
	}
	for _, tt := range tests {
		if got := FileName(tt.src, tt.idx, tt.naming); got != tt.want {
			t.Errorf("FileName(%q, %d, %q) = %q, want %q", tt.src, tt.idx, tt.naming, got, tt.want)
		}
	}
}

func TestStripDuplicateSuffix(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"01 (1).jpg", "02.jpg", "03 (2).jpg", "notes (1)"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	renamed, err := StripDuplicateSuffix(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(renamed, []string{"01.jpg"}) {
		t.Fatalf("unexpected renames %v", renamed)
	}

	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	want := []string{"01.jpg", "02.jpg", "03 (2).jpg", "notes (1)"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("got %v, want %v", names, want)
	}
}

func TestParseRangeAndSelect(t *testing.T) {
	start, end, err := ParseRange("2-3.5")
	if err != nil || start != 2 || end != 3.5 {
		t.Fatalf("unexpected range %v-%v, %v", start, end, err)
	}
	if s, e, err := ParseRange("7"); err != nil || s != 7 || e != 7 {
		t.Fatalf("single chapter: %v-%v, %v", s, e, err)
	}
	for _, bad := range []string{"", "a-2", "3-b", "5-1"} {
		if _, _, err := ParseRange(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}

	chapters := []types.Chapter{
		{Number: 4, URL: "c4"},
		{Number: 3, URL: "c3"},
		{Number: 2, URL: "c2"},
		{Number: 3, URL: "c3"},
		{Number: 1, URL: "c1"},
	}
	got := SelectChapters(chapters, start, end)
	var urls []string
	for _, c := range got {
		urls = append(urls, c.URL)
	}
	if strings.Join(urls, ",") != "c2,c3" {
		t.Fatalf("unexpected selection %v", urls)
	}
}

func TestScriptsEmbedSelector(t *testing.T) {
	js := ImagesJS(ChapterImage)
	if !strings.Contains(js, `"div.reading-content img.wp-manga-chapter-img"`) || !strings.Contains(js, "JSON.stringify") {
		t.Fatalf("unexpected script %s", js)
	}
	if !strings.Contains(ChaptersJS(ChapterList), `"ul.main.version-chap li.wp-manga-chapter"`) {
		t.Fatal("chapter script missing selector")
	}
	if !strings.Contains(TitleJS(SeriesTitle), `"div.post-title h1"`) {
		t.Fatal("title script missing selector")
	}
}

func TestDownloaderSendsCookiesAndReferer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		c, err := r.Cookie("cf_clearance")
		if err != nil || c.Value != "token" {
			http.Error(w, "challenge", http.StatusForbidden)
			return
		}
		if r.Header.Get("Referer") != "https://toongod.org/webtoon/s/chapter-1/" {
			http.Error(w, "no referer", http.StatusForbidden)
			return
		}
		if strings.HasSuffix(r.URL.Path, "missing.jpg") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("img:" + r.URL.Path))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "s", "chapter-1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "02.jpg"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := NewDownloader(DownloaderOptions{
		UserAgent:   "tenshi-test",
		Concurrency: 2,
		RetryDelay:  time.Millisecond,
	}, map[string][]*http.Cookie{
		srv.URL: {{Name: "cf_clearance", Value: "token", Path: "/"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := d.Download(context.Background(), Job{
		URLs:    []string{srv.URL + "/img/01.jpg", srv.URL + "/img/02.jpg", srv.URL + "/img/missing.jpg", srv.URL + "/img/03.jpg"},
		Dir:     dir,
		Referer: "https://toongod.org/webtoon/s/chapter-1/",
		Naming:  "source",
	})
	if err != nil {
		t.Fatal(err)
	}

	var saved []string
	for _, f := range report.Saved {
		saved = append(saved, f.Name)
	}
	if !reflect.DeepEqual(saved, []string{"01.jpg", "03.jpg"}) {
		t.Errorf("unexpected saved %v", saved)
	}
	if !reflect.DeepEqual(report.Skipped, []string{"02.jpg"}) {
		t.Errorf("unexpected skipped %v", report.Skipped)
	}
	if len(report.Failed) != 1 || !strings.HasSuffix(report.Failed[0], "missing.jpg") {
		t.Errorf("unexpected failed %v", report.Failed)
	}
	// 404 is not retried: 01, 03 and one missing attempt.
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", hits.Load())
	}

	body, err := os.ReadFile(filepath.Join(dir, "01.jpg"))
	if err != nil || string(body) != "img:/img/01.jpg" {
		t.Errorf("unexpected file content %q, %v", body, err)
	}
	old, _ := os.ReadFile(filepath.Join(dir, "02.jpg"))
	if string(old) != "old" {
		t.Errorf("existing file was overwritten")
	}
}

func TestDownloaderIndexNamingAndRetry(t *testing.T) {
	var flaky atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/flaky.png" && flaky.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d, err := NewDownloader(DownloaderOptions{RetryDelay: time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}

	report, err := d.Download(context.Background(), Job{
		URLs:    []string{"/a.webp", "/flaky.png", "/noext"},
		Dir:     dir,
		Referer: srv.URL + "/chapter-9/",
		Naming:  "index",
	})
	if err != nil {
		t.Fatal(err)
	}

	var saved []string
	for _, f := range report.Saved {
		saved = append(saved, f.Name)
	}
	if !reflect.DeepEqual(saved, []string{"000.webp", "001.png", "002.jpg"}) {
		t.Fatalf("unexpected saved %v (failed %v)", saved, report.Failed)
	}
	if flaky.Load() != 2 {
		t.Errorf("expected one retry, got %d requests", flaky.Load())
	}
}

func TestDownloaderFolderError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	d, _ := NewDownloader(DownloaderOptions{}, nil)
	if _, err := d.Download(context.Background(), Job{Dir: filepath.Join(blocker, "chapter")}); err == nil {
		t.Fatal("expected folder creation error")
	}
}
