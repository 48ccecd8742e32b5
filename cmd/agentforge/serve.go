package main

import (
	"context"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/flowerclub/agentforge/pkg/agentstore"
	"github.com/flowerclub/agentforge/pkg/backoffice"
	"github.com/flowerclub/agentforge/pkg/deployer"
	"github.com/flowerclub/agentforge/pkg/flags"
	"github.com/flowerclub/agentforge/pkg/metastore"
)

type ServerFlags struct {
	BigQueryFlags    *flags.BigQueryFlags
	CacheFlags       *flags.CacheFlags
	GoogleCloudFlags *flags.GoogleCloudFlags
	ClaudeFlags      *flags.ClaudeFlags
	DeployFlags      *flags.DeployFlags

	ListenAddr    string
	MetricsAddr   string
	ConfigAgentID string
}

func NewServerFlags() *ServerFlags {
	return &ServerFlags{
		BigQueryFlags:    flags.NewBigQueryFlags(),
		CacheFlags:       flags.NewCacheFlags(),
		GoogleCloudFlags: flags.NewGoogleCloudFlags(),
		ClaudeFlags:      flags.NewClaudeFlags(),
		DeployFlags:      flags.NewDeployFlags(),
		ListenAddr:       ":8080",
		MetricsAddr:      ":2112",
	}
}

func (f *ServerFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.BigQueryFlags.BindFlags(flagSet)
	f.CacheFlags.BindFlags(flagSet)
	f.GoogleCloudFlags.BindFlags(flagSet)
	f.ClaudeFlags.BindFlags(flagSet)
	f.DeployFlags.BindFlags(flagSet)

	flagSet.StringVar(&f.ListenAddr, "listen", f.ListenAddr, "The address to serve the backoffice on (default :8080)")
	flagSet.StringVar(&f.MetricsAddr, "listen-metrics", f.MetricsAddr, "The address to serve prometheus metrics on (default :2112)")
	flagSet.StringVar(&f.ConfigAgentID, "config-agent-id", f.ConfigAgentID,
		"Agent targeted by /api/config and /api/test when the request doesn't name one")
}

func NewServeCommand() *cobra.Command {
	f := NewServerFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backoffice admin server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cacheClient, err := f.CacheFlags.GetCacheClient()
			if err != nil {
				return errors.WithMessage(err, "couldn't get cache client")
			}

			bigQueryClient, err := f.BigQueryFlags.GetBigQueryClient(ctx,
				cacheClient, f.GoogleCloudFlags.ServiceAccountCredentialFile)
			if err != nil {
				return errors.WithMessage(err, "couldn't get bigquery client")
			}

			var storageClient *storage.Client
			storageClient, err = f.GoogleCloudFlags.GetStorageClient(ctx)
			if err != nil {
				log.WithError(err).Warn("unable to create GCS client, document uploads will be unavailable")
				storageClient = nil
			}

			store := metastore.New(bigQueryClient)
			project := f.BigQueryFlags.BigQueryProject
			region := f.GoogleCloudFlags.Region

			agentDeployer := &deployer.Deployer{
				Store:          store,
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

			server := backoffice.New(
				f.ListenAddr,
				store,
				agentDeployer,
				storageClient,
				f.GoogleCloudFlags.BucketName(project),
				f.ConfigAgentID,
			)

			if f.MetricsAddr != "" {
				// Serve our metrics endpoint for prometheus to scrape
				go func() {
					http.Handle("/metrics", promhttp.Handler())
					err := http.ListenAndServe(f.MetricsAddr, nil) //nolint
					if err != nil {
						panic(err)
					}
				}()
			}

			return server.Serve()
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
