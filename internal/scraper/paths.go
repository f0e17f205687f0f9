package scraper

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultChapterFolder is used when a URL names no chapter.
const DefaultChapterFolder = "default_chapter"

var chapterSegment = regexp.MustCompile(`(?i)^chapter`)

// ChapterFolder returns the first path segment of chapterURL that starts
// with "chapter" (any case), or DefaultChapterFolder.
func ChapterFolder(chapterURL string) string {
	u, err := url.Parse(chapterURL)
	if err != nil {
		return DefaultChapterFolder
	}
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if chapterSegment.MatchString(seg) && SafeName(seg) {
			return seg
		}
	}
	return DefaultChapterFolder
}

// LastSegment returns the URL-unescaped last path segment of rawURL.
func LastSegment(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	p := strings.TrimRight(u.EscapedPath(), "/")
	seg := p[strings.LastIndex(p, "/")+1:]
	name, err := url.PathUnescape(seg)
	if err != nil {
		return "", err
	}
	if !SafeName(name) {
		return "", fmt.Errorf("no usable path segment in %q", rawURL)
	}
	return name, nil
}

// SafeName reports whether name can be used as a single path element.
func SafeName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

// FileName names the image at index idx according to naming: "source" keeps
// the URL basename, "index" uses a zero-padded index with the URL extension
// (".jpg" when there is none). Unusable basenames fall back to the index form.
func FileName(src string, idx int, naming string) string {
	var p string
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	}
	ext := path.Ext(p)
	if ext == "" {
		ext = ".jpg"
	}
	if naming == "source" {
		if base := path.Base(p); SafeName(base) && base != "/" {
			return base
		}
	}
	return fmt.Sprintf("%03d%s", idx, ext)
}

var duplicateSuffix = regexp.MustCompile(`^(.*) \(1\)(\.\w+)$`)

// StripDuplicateSuffix renames "name (1).ext" files in dir to "name.ext",
// replacing any file already there. It returns the new names.
func StripDuplicateSuffix(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var renamed []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := duplicateSuffix.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		target := m[1] + m[2]
		oldPath := filepath.Join(dir, e.Name())
		newPath := filepath.Join(dir, target)
		if err := os.Rename(oldPath, newPath); err != nil {
			log.Warn().Err(err).Str("component", "scraper").Str("path", oldPath).Msg("rename failed")
			continue
		}
		log.Debug().Str("component", "scraper").Str("from", e.Name()).Str("to", target).Msg("stripped duplicate suffix")
		renamed = append(renamed, target)
	}
	return renamed, nil
}
