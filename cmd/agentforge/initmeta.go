package main

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	agentsv1 "github.com/flowerclub/agentforge/pkg/apis/agents/v1"
	"github.com/flowerclub/agentforge/pkg/flags"
	"github.com/flowerclub/agentforge/pkg/metastore"
)

type InitMetadataFlags struct {
	BigQueryFlags    *flags.BigQueryFlags
	GoogleCloudFlags *flags.GoogleCloudFlags

	SeedConfigAgent bool
}

func NewInitMetadataFlags() *InitMetadataFlags {
	return &InitMetadataFlags{
		BigQueryFlags:    flags.NewBigQueryFlags(),
		GoogleCloudFlags: flags.NewGoogleCloudFlags(),
	}
}

func (f *InitMetadataFlags) BindFlags(fs *pflag.FlagSet) {
	f.BigQueryFlags.BindFlags(fs)
	f.GoogleCloudFlags.BindFlags(fs)

	fs.BoolVar(&f.SeedConfigAgent, "seed-config-agent", false,
		"Insert the default configuration example agent if it doesn't exist yet")
}

func NewInitMetadataCommand() *cobra.Command {
	f := NewInitMetadataFlags()

	cmd := &cobra.Command{
		Use:   "init-metadata",
		Short: "Create the metadata dataset and tables, idempotently",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := f.BigQueryFlags.GetBigQueryClient(ctx,
				nil, f.GoogleCloudFlags.ServiceAccountCredentialFile)
			if err != nil {
				return errors.WithMessage(err, "couldn't get bigquery client")
			}

			if err := metastore.EnsureMetadata(ctx, client, f.GoogleCloudFlags.Region); err != nil {
				return errors.WithMessage(err, "couldn't ensure metadata dataset")
			}
			log.WithField("dataset", f.BigQueryFlags.BigQueryDataset).Info("metadata tables ready")

			if f.SeedConfigAgent {
				now := time.Now()
				agent := agentsv1.Agent{
					AgentID:   "config-example",
					AgentName: "Exemplo de Configuração",
					AgentType: "configuração",
					Status:    agentsv1.StatusActive,
					PromptTemplate: bigquery.NullString{
						StringVal: "Você é um agente de exemplo usado para validar a configuração da plataforma.",
						Valid:     true,
					},
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := metastore.SeedAgent(ctx, client, agent); err != nil {
					return errors.WithMessage(err, "couldn't seed config agent")
				}
				log.WithField("agent", agent.AgentID).Info("config agent seeded")
			}

			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
