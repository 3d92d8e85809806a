// Package template renders a report as Markdown for PR comments and report.md.
//
// Built-in templates are embedded. A templates directory may override any of them by
// file name; missing files fall back to the embedded copy.
package template

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	gotemplate "text/template"

	log "github.com/sirupsen/logrus"

	"github.com/gh-nvat/iacguard/src/pkg/models"
)

var logger = log.WithField("package", "template")

//go:embed templates/*.tmpl
var embedded embed.FS

var templateFiles = []string{
	FileNameCommentTemplate,
	FileNameToolsTemplate,
	FileNameViolationsTemplate,
}

// CommentData is the template input
type CommentData struct {
	models.ReportData
	Signature string
}

// Renderer renders report data through Markdown templates
type Renderer struct{}

// NewRenderer creates a renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Signature returns the hidden marker identifying the comment of a target
func Signature(target string) string {
	return strings.ReplaceAll(ToolCommentSignature, ToolCommentTargetToken, target)
}

// Render renders with the embedded templates only
func (r *Renderer) Render(data models.ReportData) (string, error) {
	return r.RenderWithTemplates("", data)
}

// RenderWithTemplates renders the comment template, preferring files in templatesPath
func (r *Renderer) RenderWithTemplates(templatesPath string, data models.ReportData) (string, error) {
	logger.WithField("templatesPath", templatesPath).Debug("RenderWithTemplates: starting...")

	root := gotemplate.New(FileNameCommentTemplate).Funcs(funcMap)
	for _, name := range templateFiles {
		src, err := r.loadTemplate(templatesPath, name)
		if err != nil {
			return "", err
		}
		var t *gotemplate.Template
		if name == FileNameCommentTemplate {
			t = root
		} else {
			t = root.New(name)
		}
		if _, err := t.Parse(src); err != nil {
			return "", fmt.Errorf("failed to parse template %s: %w", name, err)
		}
	}

	var buf bytes.Buffer
	input := CommentData{ReportData: data, Signature: Signature(data.Target)}
	if err := root.ExecuteTemplate(&buf, FileNameCommentTemplate, input); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) loadTemplate(templatesPath, name string) (string, error) {
	if templatesPath != "" {
		path := filepath.Join(templatesPath, name)
		data, err := os.ReadFile(path)
		if err == nil {
			logger.WithField("path", path).Debug("Using template override")
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read template %s: %w", path, err)
		}
	}
	data, err := embedded.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to read embedded template %s: %w", name, err)
	}
	return string(data), nil
}

var funcMap = gotemplate.FuncMap{
	"statusIcon": func(ok bool) string {
		if ok {
			return "✅"
		}
		return "❌"
	},
	"orDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
	// escapeCell keeps table cells on one line
	"escapeCell": func(s string) string {
		s = strings.ReplaceAll(s, "|", `\|`)
		return strings.ReplaceAll(s, "\n", " ")
	},
	"toolName": func(t models.Tool) string {
		return t.DisplayName()
	},
	"joinTools": func(tools []models.Tool) string {
		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.DisplayName()
		}
		return strings.Join(names, ", ")
	},
	"join": strings.Join,
}
