package web

import (
	"html/template"

	"github.com/gomarkdown/markdown"
	"github.com/microcosm-cc/bluemonday"
)

var markdownPolicy = bluemonday.UGCPolicy()

// renderMarkdown turns issue and comment text into sanitized HTML.
func renderMarkdown(s string) template.HTML {
	rs := string(markdown.ToHTML([]byte(s), nil, nil))
	rs = markdownPolicy.Sanitize(rs)
	return template.HTML(rs)
}
