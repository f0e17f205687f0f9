// Package library lists and serves saved chapter images from the data directory.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a chapter folder or image does not exist.
// ErrChapterNotFound and ErrImageNotFound both match it.
var (
	ErrNotFound        = errors.New("not found")
	ErrChapterNotFound = fmt.Errorf("chapter folder %w", ErrNotFound)
	ErrImageNotFound   = fmt.Errorf("image %w", ErrNotFound)
)

// ErrInvalidName is returned for slugs, chapters or filenames that are not
// a single path element.
var ErrInvalidName = errors.New("invalid name")

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Library is a read-only view of <data_dir>/[slug/]<chapter>/<image>.
type Library struct {
	root string
}

// New creates a Library rooted at dataDir.
func New(dataDir string) *Library {
	return &Library{root: dataDir}
}

// Root returns the data directory.
func (l *Library) Root() string {
	return l.root
}

// ChapterDir resolves the folder for a chapter. slug may be empty.
func (l *Library) ChapterDir(slug, chapter string) (string, error) {
	if err := checkName("chapter", chapter); err != nil {
		return "", err
	}
	if slug == "" {
		return filepath.Join(l.root, chapter), nil
	}
	if err := checkName("slug", slug); err != nil {
		return "", err
	}
	return filepath.Join(l.root, slug, chapter), nil
}

// List returns the image file names in a chapter folder, numeric names first
// in numeric order, then the rest lexically.
func (l *Library) List(slug, chapter string) ([]string, error) {
	dir, err := l.ChapterDir(slug, chapter)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", ErrChapterNotFound, chapter)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read chapter folder: %w", err)
	}

	images := []string{}
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		images = append(images, e.Name())
	}
	SortImages(images)
	return images, nil
}

// Image returns the path of one saved image.
func (l *Library) Image(slug, chapter, filename string) (string, error) {
	dir, err := l.ChapterDir(slug, chapter)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrChapterNotFound, chapter)
	}
	if err := checkName("filename", filename); err != nil {
		return "", err
	}

	p := filepath.Join(dir, filename)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrImageNotFound, filename)
	}
	return p, nil
}

// IsImage reports whether name has a known image extension.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// SortImages orders names by numeric base name, falling back to lexical order
// for names that are not numbers.
func SortImages(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ni, iNum := numericBase(names[i])
		nj, jNum := numericBase(names[j])
		switch {
		case iNum && jNum:
			if ni != nj {
				return ni < nj
			}
			return names[i] < names[j]
		case iNum != jNum:
			return iNum
		default:
			return names[i] < names[j]
		}
	})
}

func numericBase(name string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSuffix(name, filepath.Ext(name)))
	return n, err == nil
}

func checkName(kind, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%s %q: %w", kind, name, ErrInvalidName)
	}
	return nil
}
