package main

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/flowerclub/agentforge/pkg/agentserver"
	"github.com/flowerclub/agentforge/pkg/agentstore"
	"github.com/flowerclub/agentforge/pkg/chat"
	"github.com/flowerclub/agentforge/pkg/flags"
	"github.com/flowerclub/agentforge/pkg/metastore"
	"github.com/flowerclub/agentforge/pkg/secrets"
)

type AgentServerFlags struct {
	BigQueryFlags    *flags.BigQueryFlags
	GoogleCloudFlags *flags.GoogleCloudFlags
	ClaudeFlags      *flags.ClaudeFlags
	CustomerAPIFlags *flags.CustomerAPIFlags

	AgentID     string
	ListenAddr  string
	MetricsAddr string
}

func NewAgentServerFlags() *AgentServerFlags {
	return &AgentServerFlags{
		BigQueryFlags:    flags.NewBigQueryFlags(),
		GoogleCloudFlags: flags.NewGoogleCloudFlags(),
		ClaudeFlags:      flags.NewClaudeFlags(),
		CustomerAPIFlags: flags.NewCustomerAPIFlags(),
		ListenAddr:       ":8080",
		MetricsAddr:      ":2112",
	}
}

func (f *AgentServerFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.BigQueryFlags.BindFlags(flagSet)
	f.GoogleCloudFlags.BindFlags(flagSet)
	f.ClaudeFlags.BindFlags(flagSet)
	f.CustomerAPIFlags.BindFlags(flagSet)

	flagSet.StringVar(&f.AgentID, "agent-id", f.AgentID, "Identifier of the agent this service runs as")
	flagSet.StringVar(&f.ListenAddr, "listen", f.ListenAddr, "The address to serve chat on (default :8080)")
	flagSet.StringVar(&f.MetricsAddr, "listen-metrics", f.MetricsAddr, "The address to serve prometheus metrics on (default :2112)")
}

func (f *AgentServerFlags) Validate() error {
	if f.AgentID == "" {
		return errors.New("--agent-id is required")
	}
	return nil
}

func NewServeAgentCommand() *cobra.Command {
	f := NewAgentServerFlags()

	cmd := &cobra.Command{
		Use:   "serve-agent",
		Short: "Run a deployed agent's chat service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Validate(); err != nil {
				return errors.WithMessage(err, "error validating options")
			}

			ctx := context.Background()

			bigQueryClient, err := f.BigQueryFlags.GetBigQueryClient(ctx,
				nil, f.GoogleCloudFlags.ServiceAccountCredentialFile)
			if err != nil {
				return errors.WithMessage(err, "couldn't get bigquery client")
			}

			// The agent's prompt, model and identity live in its metadata
			// row; the service carries only its identifier.
			store := metastore.New(bigQueryClient)
			agent, err := store.GetAgent(ctx, f.AgentID)
			if err != nil {
				return errors.WithMessagef(err, "couldn't load agent %s", f.AgentID)
			}

			secretClient, err := secrets.NewClient(ctx,
				f.GoogleCloudFlags.ServiceAccountCredentialFile, f.BigQueryFlags.BigQueryProject)
			if err != nil {
				return errors.WithMessage(err, "couldn't get secret manager client")
			}

			model := f.ClaudeFlags.Model
			if agent.ClaudeModel.Valid && agent.ClaudeModel.StringVal != "" {
				model = agent.ClaudeModel.StringVal
			}
			maxTokens := f.ClaudeFlags.MaxTokens
			if agent.MaxTokens.Valid && agent.MaxTokens.Int64 > 0 {
				maxTokens = agent.MaxTokens.Int64
			}

			responder := chat.NewResponder(
				secretClient,
				f.ClaudeFlags.SecretName,
				f.CustomerAPIFlags.GetDispatcher(),
				model,
				maxTokens,
			)

			history := agentstore.ForAgent(bigQueryClient, f.AgentID)

			server := agentserver.New(
				f.ListenAddr,
				agent.AgentID,
				agent.AgentName,
				agent.AgentType,
				agent.PromptTemplate.StringVal,
				responder,
				history,
			)

			if f.MetricsAddr != "" {
				go func() {
					http.Handle("/metrics", promhttp.Handler())
					err := http.ListenAndServe(f.MetricsAddr, nil) //nolint
					if err != nil {
						panic(err)
					}
				}()
			}

			log.WithField("agent", agent.AgentID).Info("starting agent chat service")
			return server.Serve()
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
