package export

import (
	"html"
	"html/template"
	"regexp"
	"strings"
)

var boldPattern = regexp.MustCompile(`\*\*([^*]+)\*\*`)

// RichText converts the lightweight markup used in summaries and blog posts
// to HTML. Blank lines separate paragraphs, "# " and "## " start headings and
// "- " lines form a list. Text is escaped before **bold** is applied.
func RichText(text string) template.HTML {
	var out strings.Builder
	var paragraph []string
	inList := false

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		out.WriteString("<p>" + inline(strings.Join(paragraph, " ")) + "</p>\n")
		paragraph = paragraph[:0]
	}
	closeList := func() {
		if inList {
			out.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			flushParagraph()
			closeList()
		case strings.HasPrefix(line, "## "):
			flushParagraph()
			closeList()
			out.WriteString("<h3>" + inline(line[3:]) + "</h3>\n")
		case strings.HasPrefix(line, "# "):
			flushParagraph()
			closeList()
			out.WriteString("<h2>" + inline(line[2:]) + "</h2>\n")
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			flushParagraph()
			if !inList {
				out.WriteString("<ul>\n")
				inList = true
			}
			out.WriteString("<li>" + inline(line[2:]) + "</li>\n")
		default:
			closeList()
			paragraph = append(paragraph, line)
		}
	}
	flushParagraph()
	closeList()
	return template.HTML(out.String())
}

func inline(s string) string {
	return boldPattern.ReplaceAllString(html.EscapeString(s), "<strong>$1</strong>")
}
