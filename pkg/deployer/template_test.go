package deployer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTemplateData() TemplateData {
	return TemplateData{
		AgentID:           "dr-silva",
		AgentName:         "Dr. Silva",
		AgentType:         "atendimento",
		ConversationStyle: "professional",
		PromptTemplate:    "Você é o Dr. Silva.\nSeja cordial.",
		DatasetName:       "agent_dr_silva",
		Project:           "flower-ai-generator",
		Region:            "southamerica-east1",
		Model:             "claude-sonnet-4-20250514",
		MaxTokens:         1500,
	}
}

func TestTemplateDataValidate(t *testing.T) {
	assert.NoError(t, validTemplateData().Validate())

	tests := []struct {
		name   string
		mutate func(*TemplateData)
		field  string
	}{
		{name: "missing agent id", mutate: func(d *TemplateData) { d.AgentID = "" }, field: "agent id"},
		{name: "missing agent name", mutate: func(d *TemplateData) { d.AgentName = "" }, field: "agent name"},
		{name: "missing prompt", mutate: func(d *TemplateData) { d.PromptTemplate = "  " }, field: "prompt template"},
		{name: "missing dataset", mutate: func(d *TemplateData) { d.DatasetName = "" }, field: "dataset name"},
		{name: "missing project", mutate: func(d *TemplateData) { d.Project = "" }, field: "project"},
		{name: "missing region", mutate: func(d *TemplateData) { d.Region = "" }, field: "region"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := validTemplateData()
			tc.mutate(&data)
			err := data.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}

	// Model and max tokens are optional; they default at render time.
	data := validTemplateData()
	data.Model = ""
	data.MaxTokens = 0
	assert.NoError(t, data.Validate())
}

func TestRenderSourceTree(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "agent_dr-silva")
	require.NoError(t, RenderSourceTree(dir, validTemplateData()))

	dockerfile, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)
	assert.Contains(t, string(dockerfile), "dr-silva")
	assert.Contains(t, string(dockerfile), "flower-ai-generator")
	assert.NotContains(t, string(dockerfile), "{{", "all slots must be substituted")

	agentYAML, err := os.ReadFile(filepath.Join(dir, "agent.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(agentYAML), "Dr. Silva")
	assert.Contains(t, string(agentYAML), "  Você é o Dr. Silva.")
	assert.Contains(t, string(agentYAML), "  Seja cordial.")
	assert.NotContains(t, string(agentYAML), "{{")

	// No stray .tmpl files in the rendered tree.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmpl")
	}
}

// The rendered directory is submitted as the container build context, so the
// Dockerfile may only reference files that were rendered alongside it.
func TestRenderedContextIsSelfContained(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "agent_dr-silva")
	require.NoError(t, RenderSourceTree(dir, validTemplateData()))

	dockerfile, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)

	for _, line := range strings.Split(string(dockerfile), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != "COPY" {
			continue
		}
		for _, src := range fields[1 : len(fields)-1] {
			if strings.HasPrefix(src, "--") {
				continue
			}
			_, statErr := os.Stat(filepath.Join(dir, src))
			assert.NoError(t, statErr, "Dockerfile copies %q but it is not in the build context", src)
		}
	}

	// The context carries no sources, so the build must not compile anything.
	assert.NotContains(t, string(dockerfile), "go build")
}

func TestRenderSourceTreeDefaultsBaseImage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "agent_base")
	data := validTemplateData()
	data.BaseImage = ""

	require.NoError(t, RenderSourceTree(dir, data))

	dockerfile, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)
	assert.Contains(t, string(dockerfile), "FROM gcr.io/flower-ai-generator/agentforge:latest")
}

func TestRenderSourceTreeRejectsIncompleteData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "agent_bad")
	data := validTemplateData()
	data.PromptTemplate = ""

	err := RenderSourceTree(dir, data)
	require.Error(t, err)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "nothing should be written for invalid data")
}

func TestRenderSourceTreeDefaultsModel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "agent_defaults")
	data := validTemplateData()
	data.Model = ""
	data.MaxTokens = 0

	require.NoError(t, RenderSourceTree(dir, data))

	agentYAML, err := os.ReadFile(filepath.Join(dir, "agent.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(agentYAML), "claude-sonnet-4-20250514")
	assert.Contains(t, string(agentYAML), "1500")
}
