package annotation

import (
	"embed"
	"html/template"
	"io"
	"io/fs"

	"github.com/abiosoft/mold"
	"github.com/russross/blackfriday/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

type renderer interface {
	Render(w io.Writer, view string, data any) error
}

var pages renderer

func init() {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(err)
	}
	engine, err := mold.New(sub)
	if err != nil {
		panic(err)
	}
	pages = engine
}

// RenderPage renders a page of templates/ inside layout.html
func RenderPage(w io.Writer, view string, data map[string]any) error {
	return pages.Render(w, view, data)
}

func markdown(text string) template.HTML {
	return template.HTML(blackfriday.Run([]byte(text)))
}
