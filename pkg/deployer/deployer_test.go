package deployer

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentsv1 "github.com/flowerclub/agentforge/pkg/apis/agents/v1"
	"github.com/flowerclub/agentforge/pkg/agentstore"
	"github.com/flowerclub/agentforge/pkg/metastore"
)

type fakeStore struct {
	metastore.Store

	inserted     []agentsv1.Agent
	statuses     map[string]string
	urls         map[string]string
	missingURL   []agentsv1.Agent
	insertErr    error
	updateURLErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses: map[string]string{},
		urls:     map[string]string{},
	}
}

func (s *fakeStore) InsertAgent(ctx context.Context, agent agentsv1.Agent) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, agent)
	s.statuses[agent.AgentID] = agent.Status
	return nil
}

func (s *fakeStore) UpdateAgentURL(ctx context.Context, agentID, url string) error {
	if s.updateURLErr != nil {
		return s.updateURLErr
	}
	s.urls[agentID] = url
	s.statuses[agentID] = agentsv1.StatusActive
	return nil
}

func (s *fakeStore) SetAgentStatus(ctx context.Context, agentID, status string) error {
	s.statuses[agentID] = status
	return nil
}

func (s *fakeStore) FindAgentsMissingURL(ctx context.Context) ([]agentsv1.Agent, error) {
	return s.missingURL, nil
}

type fakeProvisioner struct {
	datasets []string
	err      error
}

func (p *fakeProvisioner) EnsureAgentDataset(ctx context.Context, agentID string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	name := agentstore.DatasetName(agentID)
	p.datasets = append(p.datasets, name)
	return name, nil
}

type fakeBackend struct {
	builtImages  []ImageSpec
	deployed     []ServiceSpec
	deployURL    string
	describedURL map[string]string

	buildErr    error
	deployErr   error
	describeErr error
}

func (b *fakeBackend) Build(ctx context.Context, spec ImageSpec) error {
	if b.buildErr != nil {
		return b.buildErr
	}
	b.builtImages = append(b.builtImages, spec)
	return nil
}

func (b *fakeBackend) Deploy(ctx context.Context, spec ServiceSpec) (string, error) {
	if b.deployErr != nil {
		return "", b.deployErr
	}
	b.deployed = append(b.deployed, spec)
	return b.deployURL, nil
}

func (b *fakeBackend) ServiceURL(ctx context.Context, name string) (string, error) {
	if b.describeErr != nil {
		return "", b.describeErr
	}
	return b.describedURL[name], nil
}

func newTestDeployer(t *testing.T, store *fakeStore, prov *fakeProvisioner, backend *fakeBackend) *Deployer {
	return &Deployer{
		Store:          store,
		Datasets:       prov,
		Backend:        backend,
		Project:        "flower-ai-generator",
		Region:         "southamerica-east1",
		ServiceAccount: "ai-generator-sa@flower-ai-generator.iam.gserviceaccount.com",
		CreatorEmail:   "admin@flower.club",
		Model:          "claude-sonnet-4-20250514",
		MaxTokens:      1500,
		WorkDir:        t.TempDir(),
	}
}

func testConfig() agentsv1.AgentConfig {
	return agentsv1.AgentConfig{
		Name:              "Dr. Silva",
		Type:              "atendimento",
		Specialization:    "cardiologia",
		ConversationStyle: "professional",
		SystemPrompt:      "Você é o Dr. Silva.",
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{name: "Dr. Silva", expected: "dr-silva"},
		{name: "Atendimento Flower Club", expected: "atendimento-flower-club"},
		{name: "Sra. M. Oliveira", expected: "sra-m-oliveira"},
		{name: "suporte", expected: "suporte"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, Slugify(tc.name))
	}
}

func TestNewAgentID(t *testing.T) {
	assert.Equal(t, "dr-silva", NewAgentID("Dr. Silva"))

	// No name means a random identifier.
	id := NewAgentID("   ")
	assert.NotEmpty(t, id)
	assert.NotEqual(t, id, NewAgentID(""))
}

func TestDeploySuccess(t *testing.T) {
	store := newFakeStore()
	prov := &fakeProvisioner{}
	backend := &fakeBackend{deployURL: "https://agent-dr-silva-xyz.run.app"}
	d := newTestDeployer(t, store, prov, backend)

	result, err := d.Deploy(context.Background(), testConfig())
	require.NoError(t, err)

	assert.Equal(t, "dr-silva", result.AgentID)
	assert.Equal(t, "agent-dr-silva", result.ServiceName)
	assert.Equal(t, "agent_dr_silva", result.DatasetName)
	assert.Equal(t, "https://agent-dr-silva-xyz.run.app", result.ServiceURL)

	// Row is registered as creating, then activated with the URL.
	require.Len(t, store.inserted, 1)
	assert.Equal(t, agentsv1.StatusCreating, store.inserted[0].Status)
	assert.Equal(t, "agent_dr_silva", store.inserted[0].BigQueryDataset.StringVal)
	assert.Equal(t, agentsv1.StatusActive, store.statuses["dr-silva"])
	assert.Equal(t, "https://agent-dr-silva-xyz.run.app", store.urls["dr-silva"])

	assert.Equal(t, []string{"agent_dr_silva"}, prov.datasets)

	require.Len(t, backend.builtImages, 1)
	assert.Equal(t, "gcr.io/flower-ai-generator/agent-dr-silva", backend.builtImages[0].Tag)
	require.Len(t, backend.deployed, 1)
	assert.Equal(t, "agent-dr-silva", backend.deployed[0].Name)
	assert.Equal(t, "southamerica-east1", backend.deployed[0].Region)

	stepNames := make([]string, 0, len(result.Steps))
	for _, s := range result.Steps {
		stepNames = append(stepNames, s.Name)
		assert.Empty(t, s.Err)
	}
	assert.Equal(t, []string{
		StepRegister, StepRender, StepProvision, StepBuild,
		StepDeploy, StepDiscoverURL, StepActivate,
	}, stepNames)
}

func TestDeployDiscoversURLWhenDeployOutputHasNone(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{
		deployURL:    "",
		describedURL: map[string]string{"agent-dr-silva": "https://agent-dr-silva-abc.run.app"},
	}
	d := newTestDeployer(t, store, &fakeProvisioner{}, backend)

	result, err := d.Deploy(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, "https://agent-dr-silva-abc.run.app", result.ServiceURL)
	assert.Equal(t, "https://agent-dr-silva-abc.run.app", store.urls["dr-silva"])
}

func TestDeployBuildFailureMarksAgentErrored(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{buildErr: errors.New("build timed out")}
	d := newTestDeployer(t, store, &fakeProvisioner{}, backend)

	result, err := d.Deploy(context.Background(), testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build timed out")

	// The step log shows how far the pipeline got.
	require.Len(t, result.Steps, 4)
	assert.Equal(t, StepBuild, result.Steps[3].Name)
	assert.Contains(t, result.Steps[3].Err, "build timed out")

	assert.Equal(t, agentsv1.StatusError, store.statuses["dr-silva"])
	assert.Empty(t, result.ServiceURL)
	assert.Empty(t, backend.deployed, "deploy must not run after a failed build")
}

func TestDeployRegisterFailureStopsImmediately(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("quota exceeded")
	backend := &fakeBackend{}
	d := newTestDeployer(t, store, &fakeProvisioner{}, backend)

	result, err := d.Deploy(context.Background(), testConfig())
	require.Error(t, err)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, StepRegister, result.Steps[0].Name)
	assert.Empty(t, backend.builtImages)
}

func TestDeployURLDiscoveryFailureMarksAgentErrored(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{deployURL: "", describedURL: map[string]string{}}
	d := newTestDeployer(t, store, &fakeProvisioner{}, backend)

	_, err := d.Deploy(context.Background(), testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no URL")
	assert.Equal(t, agentsv1.StatusError, store.statuses["dr-silva"])
}

func TestDeployDefaultDescription(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{deployURL: "https://x.run.app"}
	d := newTestDeployer(t, store, &fakeProvisioner{}, backend)

	cfg := testConfig()
	cfg.Description = ""
	_, err := d.Deploy(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "Agente atendimento especializado em cardiologia", store.inserted[0].Description.StringVal)
}

func TestRepairURLs(t *testing.T) {
	store := newFakeStore()
	store.missingURL = []agentsv1.Agent{
		{AgentID: "dr-silva"},
		{AgentID: "suporte"},
		{AgentID: "vendas"},
	}
	backend := &fakeBackend{describedURL: map[string]string{
		"agent-dr-silva": "https://agent-dr-silva-xyz.run.app",
		"agent-vendas":   "https://agent-vendas-xyz.run.app",
	}}
	d := newTestDeployer(t, store, &fakeProvisioner{}, backend)

	repaired, err := d.RepairURLs(context.Background())
	require.NoError(t, err)

	// All three rows are updated; two get real URLs, one gets an empty
	// value from the backend. The pass itself doesn't fail on any row.
	assert.Equal(t, 3, repaired)
	assert.Equal(t, "https://agent-dr-silva-xyz.run.app", store.urls["dr-silva"])
	assert.Equal(t, "https://agent-vendas-xyz.run.app", store.urls["vendas"])
}

func TestRepairURLsSkipsBackendFailures(t *testing.T) {
	store := newFakeStore()
	store.missingURL = []agentsv1.Agent{{AgentID: "dr-silva"}}
	backend := &fakeBackend{describeErr: errors.New("gcloud not found")}
	d := newTestDeployer(t, store, &fakeProvisioner{}, backend)

	repaired, err := d.RepairURLs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, repaired)
	assert.Empty(t, store.urls)
}
