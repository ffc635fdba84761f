package notify

import (
	"embed"
	"log"
	"strings"
)

//go:embed templates/*.md
var templateFS embed.FS

// Template returns the embedded email body named by name (without the
// .md suffix). Missing templates are a programming error; they log and
// return an empty body rather than panic.
func Template(name string) string {
	body, err := templateFS.ReadFile("templates/" + name + ".md")
	if err != nil {
		log.Printf("notify: missing email template %q: %v", name, err)
		return ""
	}
	return strings.TrimSpace(string(body)) + "\n"
}
