package main

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	agentsv1 "github.com/flowerclub/agentforge/pkg/apis/agents/v1"
	"github.com/flowerclub/agentforge/pkg/agentstore"
	"github.com/flowerclub/agentforge/pkg/flags"
	"github.com/flowerclub/agentforge/pkg/metastore"
)

type AggregateAnalyticsFlags struct {
	BigQueryFlags    *flags.BigQueryFlags
	GoogleCloudFlags *flags.GoogleCloudFlags

	Date string
}

func NewAggregateAnalyticsFlags() *AggregateAnalyticsFlags {
	return &AggregateAnalyticsFlags{
		BigQueryFlags:    flags.NewBigQueryFlags(),
		GoogleCloudFlags: flags.NewGoogleCloudFlags(),
	}
}

func (f *AggregateAnalyticsFlags) BindFlags(fs *pflag.FlagSet) {
	f.BigQueryFlags.BindFlags(fs)
	f.GoogleCloudFlags.BindFlags(fs)

	fs.StringVar(&f.Date, "date", "", "UTC day to aggregate, YYYY-MM-DD (default yesterday)")
}

func (f *AggregateAnalyticsFlags) Day() (civil.Date, error) {
	if f.Date == "" {
		return civil.DateOf(time.Now().UTC().AddDate(0, 0, -1)), nil
	}
	return civil.ParseDate(f.Date)
}

// NewAggregateAnalyticsCommand rolls one day of per-agent chat activity into
// the daily_analytics table. Run daily; re-running a day replaces its rows.
func NewAggregateAnalyticsCommand() *cobra.Command {
	f := NewAggregateAnalyticsFlags()

	cmd := &cobra.Command{
		Use:   "aggregate-analytics",
		Short: "Aggregate per-agent chat activity into daily analytics rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := f.Day()
			if err != nil {
				return errors.WithMessage(err, "couldn't parse --date")
			}

			ctx := context.Background()
			client, err := f.BigQueryFlags.GetBigQueryClient(ctx,
				nil, f.GoogleCloudFlags.ServiceAccountCredentialFile)
			if err != nil {
				return errors.WithMessage(err, "couldn't get bigquery client")
			}

			store := metastore.New(client)
			agents, err := store.ListAgents(ctx)
			if err != nil {
				return errors.WithMessage(err, "couldn't list agents")
			}

			aggregated := 0
			for _, agent := range agents {
				if agent.Status != agentsv1.StatusActive {
					continue
				}
				aLog := log.WithFields(log.Fields{"agent": agent.AgentID, "date": day.String()})

				conversations, messages, err := agentstore.ForAgent(client, agent.AgentID).DailyStats(ctx, day)
				if err != nil {
					aLog.WithError(err).Warn("couldn't aggregate agent activity")
					continue
				}

				err = store.UpsertDailyAnalytics(ctx, agentsv1.DailyAnalytics{
					AgentID:            agent.AgentID,
					Date:               day,
					TotalConversations: bigquery.NullInt64{Int64: conversations, Valid: true},
					TotalMessages:      bigquery.NullInt64{Int64: messages, Valid: true},
				})
				if err != nil {
					aLog.WithError(err).Error("couldn't upsert analytics row")
					continue
				}
				aLog.WithFields(log.Fields{"conversations": conversations, "messages": messages}).
					Info("analytics row written")
				aggregated++
			}

			log.WithField("agents", aggregated).Info("analytics aggregation complete")
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
