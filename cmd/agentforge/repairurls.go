package main

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/flowerclub/agentforge/pkg/deployer"
	"github.com/flowerclub/agentforge/pkg/flags"
	"github.com/flowerclub/agentforge/pkg/metastore"
)

type RepairURLsFlags struct {
	BigQueryFlags    *flags.BigQueryFlags
	GoogleCloudFlags *flags.GoogleCloudFlags
}

func NewRepairURLsFlags() *RepairURLsFlags {
	return &RepairURLsFlags{
		BigQueryFlags:    flags.NewBigQueryFlags(),
		GoogleCloudFlags: flags.NewGoogleCloudFlags(),
	}
}

func (f *RepairURLsFlags) BindFlags(fs *pflag.FlagSet) {
	f.BigQueryFlags.BindFlags(fs)
	f.GoogleCloudFlags.BindFlags(fs)
}

func NewRepairURLsCommand() *cobra.Command {
	f := NewRepairURLsFlags()

	cmd := &cobra.Command{
		Use:   "repair-urls",
		Short: "Re-discover service URLs for agents stuck without one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := f.BigQueryFlags.GetBigQueryClient(ctx,
				nil, f.GoogleCloudFlags.ServiceAccountCredentialFile)
			if err != nil {
				return errors.WithMessage(err, "couldn't get bigquery client")
			}

			project := f.BigQueryFlags.BigQueryProject
			region := f.GoogleCloudFlags.Region
			agentDeployer := &deployer.Deployer{
				Store:   metastore.New(client),
				Backend: deployer.NewGCloudBackend(project, region),
				Project: project,
				Region:  region,
			}

			repaired, err := agentDeployer.RepairURLs(ctx)
			if err != nil {
				return errors.WithMessage(err, "url repair pass failed")
			}
			log.WithField("repaired", repaired).Info("url repair pass complete")
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
