// Package render converts message bodies to readable plain text for hook
// payloads and message views.
package render

import (
	"regexp"
	"strings"
)

var (
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	anchorPattern  = regexp.MustCompile(`(?is)<a\s[^>]*href="([^"]+)"[^>]*>(.*?)</a>`)
	headingPattern = regexp.MustCompile(`(?is)<h[1-6][^>]*>(.*?)</h[1-6]>`)
	styleOrScript  = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?</(style|script)>`)
	entityReplacer = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
)

// MarkdownBody picks the best plain rendering of a message body: the
// text/plain part when present, otherwise the HTML part reduced to
// markdown-flavored text.
func MarkdownBody(textBody, htmlBody string) string {
	if strings.TrimSpace(textBody) != "" {
		return strings.TrimSpace(textBody)
	}
	return HTMLToText(htmlBody)
}

// HTMLToText reduces HTML to plain text. Anchors keep their targets as
// markdown links and headings keep their text on their own line; the rest
// of the markup is dropped.
func HTMLToText(html string) string {
	if html == "" {
		return ""
	}

	result := styleOrScript.ReplaceAllString(html, "")
	result = anchorPattern.ReplaceAllString(result, "[$2]($1)")
	result = headingPattern.ReplaceAllString(result, "\n$1\n")

	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>", "</tr>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")
	result = entityReplacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
