package deployer

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

//go:embed templates
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	// indent prefixes every line with two spaces, for YAML block scalars.
	"indent": func(s string) string {
		lines := strings.Split(s, "\n")
		for i := range lines {
			lines[i] = "  " + lines[i]
		}
		return strings.Join(lines, "\n")
	},
}

// TemplateData is the full set of substitution slots for the generated agent
// build context. Every field is required except BaseImage, Model and
// MaxTokens, which default.
type TemplateData struct {
	AgentID           string
	AgentName         string
	AgentType         string
	ConversationStyle string
	PromptTemplate    string
	DatasetName       string
	Project           string
	Region            string
	BaseImage         string
	Model             string
	MaxTokens         int64
}

// Validate checks required-field presence before rendering, so a missing
// value fails the pipeline instead of producing a service with an empty
// placeholder baked in.
func (d TemplateData) Validate() error {
	missing := []string{}
	required := map[string]string{
		"agent id":        d.AgentID,
		"agent name":      d.AgentName,
		"agent type":      d.AgentType,
		"prompt template": d.PromptTemplate,
		"dataset name":    d.DatasetName,
		"project":         d.Project,
		"region":          d.Region,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("template data missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RenderSourceTree materializes the agent service source into dir. The
// layout mirrors the template directory: each .tmpl file is rendered with
// the substitution slots, everything else is copied through.
func RenderSourceTree(dir string, data TemplateData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	if data.BaseImage == "" {
		data.BaseImage = fmt.Sprintf("gcr.io/%s/agentforge:latest", data.Project)
	}
	if data.Model == "" {
		data.Model = "claude-sonnet-4-20250514"
	}
	if data.MaxTokens <= 0 {
		data.MaxTokens = 1500
	}

	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return errors.WithMessage(err, "couldn't read embedded templates")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join("templates", entry.Name())
		raw, err := templateFS.ReadFile(src)
		if err != nil {
			return err
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".tmpl") {
			if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
				return err
			}
			continue
		}

		tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(string(raw))
		if err != nil {
			return errors.WithMessagef(err, "couldn't parse template %s", name)
		}

		out, err := os.Create(filepath.Join(dir, strings.TrimSuffix(name, ".tmpl")))
		if err != nil {
			return err
		}
		if err := tmpl.Execute(out, data); err != nil {
			out.Close()
			return errors.WithMessagef(err, "couldn't render template %s", name)
		}
		if err := out.Close(); err != nil {
			return err
		}
		log.WithField("file", strings.TrimSuffix(name, ".tmpl")).Debug("rendered template")
	}

	return nil
}
