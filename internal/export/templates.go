package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var articleTemplate = template.Must(template.New("article.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time) string {
		return t.UTC().Format("Jan 2, 2006")
	},
}).ParseFS(templateFS, "templates/article.html"))

// TemplateData holds data for article template rendering
type TemplateData struct {
	Title      string
	AuthorName string
	CreatedAt  time.Time
	Score      int
	Tags       []string
	Paragraphs [][]string
	References []TemplateReference
}

type TemplateReference struct {
	ID    string
	Title string
}

// RenderArticleHTML renders the article template with provided data
func RenderArticleHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := articleTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// paragraphs splits plain text on blank lines; each paragraph keeps its
// line breaks as separate entries so the template can escape every line.
func paragraphs(content string) [][]string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var out [][]string
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.Trim(block, "\n")
		if strings.TrimSpace(block) == "" {
			continue
		}
		out = append(out, strings.Split(block, "\n"))
	}
	return out
}
