package channels

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlToText renders an HTML email body as readable plain text for the
// text/plain alternative. Links keep their target in parentheses.
func htmlToText(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	doc.Find("script, style, head").Remove()
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") || strings.TrimSpace(s.Text()) == href {
			return
		}
		s.AppendHtml(" (" + html.EscapeString(href) + ")")
	})
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
