package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
)

//go:embed page.html
var pageTemplate string

var page = template.Must(template.New("page").Parse(pageTemplate))

type pageData struct {
	Meta *Meta
	Body template.HTML
}

// Page wraps a rendered report body into a standalone HTML document.
func Page(body []byte, meta *Meta) ([]byte, error) {
	buf := bytes.Buffer{}
	if err := page.Execute(&buf, pageData{Meta: meta, Body: template.HTML(body)}); err != nil {
		return nil, fmt.Errorf("cannot execute page template: %w", err)
	}

	return buf.Bytes(), nil
}
