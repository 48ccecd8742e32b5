package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	agentsv1 "github.com/flowerclub/agentforge/pkg/apis/agents/v1"
	"github.com/flowerclub/agentforge/pkg/agentstore"
	"github.com/flowerclub/agentforge/pkg/deployer"
	"github.com/flowerclub/agentforge/pkg/flags"
	"github.com/flowerclub/agentforge/pkg/metastore"
)

type DeployCommandFlags struct {
	BigQueryFlags    *flags.BigQueryFlags
	GoogleCloudFlags *flags.GoogleCloudFlags
	ClaudeFlags      *flags.ClaudeFlags
	DeployFlags      *flags.DeployFlags

	Name              string
	Type              string
	Specialization    string
	ConversationStyle string
	Description       string
	PromptFile        string
}

func NewDeployCommandFlags() *DeployCommandFlags {
	return &DeployCommandFlags{
		BigQueryFlags:    flags.NewBigQueryFlags(),
		GoogleCloudFlags: flags.NewGoogleCloudFlags(),
		ClaudeFlags:      flags.NewClaudeFlags(),
		DeployFlags:      flags.NewDeployFlags(),
	}
}

func (f *DeployCommandFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.BigQueryFlags.BindFlags(flagSet)
	f.GoogleCloudFlags.BindFlags(flagSet)
	f.ClaudeFlags.BindFlags(flagSet)
	f.DeployFlags.BindFlags(flagSet)

	flagSet.StringVar(&f.Name, "name", "", "Display name for the new agent (required)")
	flagSet.StringVar(&f.Type, "type", "", "Category/type of the new agent (required)")
	flagSet.StringVar(&f.Specialization, "specialization", "", "What the agent specializes in")
	flagSet.StringVar(&f.ConversationStyle, "conversation-style", "professional", "Conversation style tag")
	flagSet.StringVar(&f.Description, "description", "", "Free-text description")
	flagSet.StringVar(&f.PromptFile, "prompt-file", "", "File holding the agent's system prompt (required)")
}

func (f *DeployCommandFlags) Validate() error {
	if f.Name == "" || f.Type == "" || f.PromptFile == "" {
		return errors.New("--name, --type and --prompt-file are required")
	}
	return nil
}

func NewDeployCommand() *cobra.Command {
	f := NewDeployCommandFlags()

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Provision and deploy a new agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Validate(); err != nil {
				return errors.WithMessage(err, "error validating options")
			}

			prompt, err := os.ReadFile(f.PromptFile)
			if err != nil {
				return errors.WithMessagef(err, "couldn't read prompt file %s", f.PromptFile)
			}

			ctx := context.Background()
			bigQueryClient, err := f.BigQueryFlags.GetBigQueryClient(ctx,
				nil, f.GoogleCloudFlags.ServiceAccountCredentialFile)
			if err != nil {
				return errors.WithMessage(err, "couldn't get bigquery client")
			}

			project := f.BigQueryFlags.BigQueryProject
			region := f.GoogleCloudFlags.Region

			agentDeployer := &deployer.Deployer{
				Store:          metastore.New(bigQueryClient),
				Datasets:       agentstore.New(bigQueryClient, region),
				Backend:        deployer.NewGCloudBackend(project, region),
				Project:        project,
				Region:         region,
				ServiceAccount: f.DeployFlags.ServiceAccountName(project),
				CreatorEmail:   f.DeployFlags.CreatorEmail,
				Model:          f.ClaudeFlags.Model,
				MaxTokens:      f.ClaudeFlags.MaxTokens,
				BaseImage:      f.DeployFlags.BaseImageName(project),
				WorkDir:        f.DeployFlags.WorkDir,
			}

			result, deployErr := agentDeployer.Deploy(ctx, agentsv1.AgentConfig{
				Name:              f.Name,
				Type:              f.Type,
				Specialization:    f.Specialization,
				ConversationStyle: f.ConversationStyle,
				SystemPrompt:      string(prompt),
				Description:       f.Description,
			})

			// The step log is printed even on failure so the operator can
			// see where the pipeline stopped.
			out, err := json.MarshalIndent(result, "", "  ")
			if err == nil {
				fmt.Fprintln(os.Stdout, string(out))
			}

			if deployErr != nil {
				log.WithError(deployErr).Error("deployment failed")
				return deployErr
			}

			log.WithFields(log.Fields{
				"agent":   result.AgentID,
				"url":     result.ServiceURL,
				"dataset": result.DatasetName,
			}).Info("deployment complete")
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
