package notify

import (
	"embed"
	"strings"
	"text/template"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	templates          = template.Must(template.ParseFS(templateFS, "templates/*.txt"))
	activationTemplate = "activation.txt"
	rsvpTemplate       = "rsvp.txt"
)

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
