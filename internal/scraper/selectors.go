package scraper

import "fmt"

// Madara (wp-manga) reader DOM selectors.
// These are isolated here because sites restyle their readers;
// override them in [download] when scraping breaks.

const (
	// Chapter reader
	ChapterImage = `div.reading-content img.wp-manga-chapter-img`

	// Series page
	SeriesTitle = `div.post-title h1`
	ChapterList = `ul.main.version-chap li.wp-manga-chapter`
)

// Common wait conditions
const (
	WaitForSeries  = `div.post-title`
	WaitForChapter = `ul.main.version-chap`
)

// ImagesJS returns a script that collects image URLs (src, then data-src)
// for selector and returns them as a JSON-stringified array.
func ImagesJS(selector string) string {
	return fmt.Sprintf(`(function(){
	var imgs = document.querySelectorAll(%q);
	var srcs = [];
	for (var i = 0; i < imgs.length; i++) {
		var src = imgs[i].getAttribute("src") || imgs[i].getAttribute("data-src");
		if (src && src.trim()) srcs.push(src.trim());
	}
	return JSON.stringify(srcs);
})();`, selector)
}

// TitleJS returns a script reading the series title, or "" when absent.
func TitleJS(selector string) string {
	return fmt.Sprintf(`(function(){
	var el = document.querySelector(%q);
	return el ? el.innerText.trim() : "";
})();`, selector)
}

// ChaptersJS returns a script listing chapters as a JSON-stringified array of
// {title, number, url}.
func ChaptersJS(selector string) string {
	return fmt.Sprintf(`(function(){
	var chapters = [];
	var items = document.querySelectorAll(%q);
	for (var i = 0; i < items.length; i++) {
		var link = items[i].querySelector("a");
		if (!link) continue;
		var title = link.textContent.trim();
		var num = parseFloat(title.replace(/^.*?chapter\s*/i, "")) || 0;
		chapters.push({title: title, number: num, url: link.href});
	}
	return JSON.stringify(chapters);
})();`, selector)
}
