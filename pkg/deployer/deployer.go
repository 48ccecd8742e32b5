// Package deployer turns an agent configuration into a running, registered
// chat service: metadata row, source tree, warehouse dataset, container
// build and deploy, URL discovery.
package deployer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	agentsv1 "github.com/flowerclub/agentforge/pkg/apis/agents/v1"
	"github.com/flowerclub/agentforge/pkg/agentstore"
	"github.com/flowerclub/agentforge/pkg/metastore"
)

// Pipeline step names, in execution order.
const (
	StepRegister    = "register"
	StepRender      = "render"
	StepProvision   = "provision"
	StepBuild       = "build"
	StepDeploy      = "deploy"
	StepDiscoverURL = "discover-url"
	StepActivate    = "activate"
)

// StepResult records one pipeline step's outcome. The step log lets an
// operator see exactly how far a failed deployment got; nothing is rolled
// back automatically.
type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Result is the outcome of one deployment pipeline run.
type Result struct {
	AgentID     string       `json:"agent_id"`
	ServiceName string       `json:"service_name"`
	ServiceURL  string       `json:"service_url,omitempty"`
	DatasetName string       `json:"dataset_name,omitempty"`
	Steps       []StepResult `json:"steps"`
}

type Deployer struct {
	Store    metastore.Store
	Datasets agentstore.Provisioner
	Backend  Backend

	Project        string
	Region         string
	ServiceAccount string
	CreatorEmail   string
	Model          string
	MaxTokens      int64

	// BaseImage is the prebuilt service image the per-agent build derives
	// from. The rendered context carries only the Dockerfile and the agent
	// config, so everything else must already live in this image.
	BaseImage string

	// WorkDir is where source trees are materialized. Defaults to the
	// system temp directory.
	WorkDir string
}

// Slugify derives the stable agent identifier from a display name:
// lower-cased, spaces to hyphens, periods removed.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, ".", "")
	return slug
}

// NewAgentID assigns the identifier for a new agent: the slug of its name,
// or a random identifier when no name is given.
func NewAgentID(name string) string {
	if strings.TrimSpace(name) == "" {
		return uuid.NewString()
	}
	return Slugify(name)
}

// ServiceName returns the managed-service name for an agent.
func ServiceName(agentID string) string {
	return "agent-" + agentID
}

// Deploy runs the full provisioning pipeline. Each step's failure halts the
// pipeline; completed steps are left in place for manual inspection and the
// agent row is flipped to error status.
func (d *Deployer) Deploy(ctx context.Context, cfg agentsv1.AgentConfig) (*Result, error) {
	agentID := NewAgentID(cfg.Name)
	result := &Result{
		AgentID:     agentID,
		ServiceName: ServiceName(agentID),
		DatasetName: agentstore.DatasetName(agentID),
	}
	dLog := log.WithFields(log.Fields{"agent": agentID, "service": result.ServiceName})
	dLog.Info("starting agent deployment")

	err := d.step(result, StepRegister, func() error {
		return d.registerAgent(ctx, agentID, cfg, result.DatasetName)
	})
	if err != nil {
		return result, err
	}

	var sourceDir string
	err = d.step(result, StepRender, func() error {
		var renderErr error
		sourceDir, renderErr = d.renderSource(agentID, cfg)
		return renderErr
	})
	if err != nil {
		return result, d.failed(ctx, agentID, err)
	}

	err = d.step(result, StepProvision, func() error {
		_, provErr := d.Datasets.EnsureAgentDataset(ctx, agentID)
		return provErr
	})
	if err != nil {
		return result, d.failed(ctx, agentID, err)
	}

	imageTag := fmt.Sprintf("gcr.io/%s/%s", d.Project, result.ServiceName)
	err = d.step(result, StepBuild, func() error {
		return d.Backend.Build(ctx, ImageSpec{SourceDir: sourceDir, Tag: imageTag})
	})
	if err != nil {
		return result, d.failed(ctx, agentID, err)
	}

	var serviceURL string
	err = d.step(result, StepDeploy, func() error {
		var deployErr error
		serviceURL, deployErr = d.Backend.Deploy(ctx, ServiceSpec{
			Name:           result.ServiceName,
			Image:          imageTag,
			Region:         d.Region,
			ServiceAccount: d.ServiceAccount,
			EnvVars: map[string]string{
				"GOOGLE_CLOUD_PROJECT": d.Project,
			},
		})
		return deployErr
	})
	if err != nil {
		return result, d.failed(ctx, agentID, err)
	}

	err = d.step(result, StepDiscoverURL, func() error {
		if serviceURL != "" {
			return nil
		}
		var lookupErr error
		serviceURL, lookupErr = d.Backend.ServiceURL(ctx, result.ServiceName)
		if lookupErr != nil {
			return lookupErr
		}
		if serviceURL == "" {
			return fmt.Errorf("deployed service %s has no URL", result.ServiceName)
		}
		return nil
	})
	if err != nil {
		return result, d.failed(ctx, agentID, err)
	}
	result.ServiceURL = serviceURL

	err = d.step(result, StepActivate, func() error {
		return d.Store.UpdateAgentURL(ctx, agentID, serviceURL)
	})
	if err != nil {
		return result, d.failed(ctx, agentID, err)
	}

	dLog.WithField("url", serviceURL).Info("agent deployed")
	return result, nil
}

// RepairURLs finds agents whose deployment finished without a recorded
// service URL, rediscovers each URL from the deployment backend, and updates
// the row. Safe to re-run.
func (d *Deployer) RepairURLs(ctx context.Context) (int, error) {
	agents, err := d.Store.FindAgentsMissingURL(ctx)
	if err != nil {
		return 0, errors.WithMessage(err, "couldn't list agents missing a URL")
	}

	repaired := 0
	for _, agent := range agents {
		aLog := log.WithField("agent", agent.AgentID)
		url, err := d.Backend.ServiceURL(ctx, ServiceName(agent.AgentID))
		if err != nil {
			aLog.WithError(err).Warn("couldn't discover service URL")
			continue
		}
		if err := d.Store.UpdateAgentURL(ctx, agent.AgentID, url); err != nil {
			aLog.WithError(err).Error("couldn't update agent URL")
			continue
		}
		aLog.WithField("url", url).Info("agent URL repaired")
		repaired++
	}

	return repaired, nil
}

func (d *Deployer) registerAgent(ctx context.Context, agentID string, cfg agentsv1.AgentConfig, datasetName string) error {
	description := cfg.Description
	if description == "" {
		description = fmt.Sprintf("Agente %s especializado em %s", cfg.Type, cfg.Specialization)
	}

	now := time.Now().UTC()
	return d.Store.InsertAgent(ctx, agentsv1.Agent{
		AgentID:           agentID,
		AgentName:         cfg.Name,
		AgentType:         cfg.Type,
		Specialization:    cfg.Specialization,
		ConversationStyle: cfg.ConversationStyle,
		Status:            agentsv1.StatusCreating,
		BigQueryDataset:   bigquery.NullString{StringVal: datasetName, Valid: true},
		CreatedAt:         now,
		UpdatedAt:         now,
		CreatorEmail:      bigquery.NullString{StringVal: d.CreatorEmail, Valid: d.CreatorEmail != ""},
		PromptTemplate:    bigquery.NullString{StringVal: cfg.SystemPrompt, Valid: cfg.SystemPrompt != ""},
		Description:       bigquery.NullString{StringVal: description, Valid: true},
		ClaudeModel:       bigquery.NullString{StringVal: d.Model, Valid: d.Model != ""},
		MaxTokens:         bigquery.NullInt64{Int64: d.MaxTokens, Valid: d.MaxTokens > 0},
	})
}

func (d *Deployer) renderSource(agentID string, cfg agentsv1.AgentConfig) (string, error) {
	workDir := d.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	sourceDir := filepath.Join(workDir, "agent_"+agentID)

	// A leftover tree from a previous attempt is replaced wholesale.
	if err := os.RemoveAll(sourceDir); err != nil {
		return "", err
	}

	err := RenderSourceTree(sourceDir, TemplateData{
		AgentID:           agentID,
		AgentName:         cfg.Name,
		AgentType:         cfg.Type,
		ConversationStyle: cfg.ConversationStyle,
		PromptTemplate:    cfg.SystemPrompt,
		DatasetName:       agentstore.DatasetName(agentID),
		Project:           d.Project,
		Region:            d.Region,
		BaseImage:         d.BaseImage,
		Model:             d.Model,
		MaxTokens:         d.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return sourceDir, nil
}

// step runs fn, timing it and appending to the step log.
func (d *Deployer) step(result *Result, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	sr := StepResult{Name: name, Duration: time.Since(start)}
	if err != nil {
		sr.Err = err.Error()
	}
	result.Steps = append(result.Steps, sr)
	if err != nil {
		return errors.WithMessagef(err, "step %s failed", name)
	}
	log.WithFields(log.Fields{"step": name, "duration": sr.Duration}).Debug("pipeline step complete")
	return nil
}

// failed marks the agent row as errored (best effort) and returns err.
func (d *Deployer) failed(ctx context.Context, agentID string, err error) error {
	if statusErr := d.Store.SetAgentStatus(ctx, agentID, agentsv1.StatusError); statusErr != nil {
		log.WithError(statusErr).Error("couldn't mark agent as errored")
	}
	return err
}
