// Package metastore provides typed access to the central agent metadata
// tables.
package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"

	agentsv1 "github.com/flowerclub/agentforge/pkg/apis/agents/v1"
	bqclient "github.com/flowerclub/agentforge/pkg/bigquery"
)

// ErrAgentNotFound is returned by GetAgent for an unknown identifier.
var ErrAgentNotFound = errors.New("agent not found")

const agentListCacheDuration = 2 * time.Minute

// Store is the read/write surface over the agent metadata tables. Every call
// is a round trip to the warehouse; there are no cross-statement
// transactions, and concurrent writers race with last-write-wins semantics.
type Store interface {
	ListAgents(ctx context.Context) ([]agentsv1.Agent, error)
	GetAgent(ctx context.Context, agentID string) (*agentsv1.Agent, error)
	InsertAgent(ctx context.Context, agent agentsv1.Agent) error
	UpdateAgentURL(ctx context.Context, agentID, url string) error
	SetAgentStatus(ctx context.Context, agentID, status string) error
	ListDocuments(ctx context.Context, agentID string) ([]agentsv1.Document, error)
	InsertDocument(ctx context.Context, doc agentsv1.Document) error
	FindAgentsMissingURL(ctx context.Context) ([]agentsv1.Agent, error)
	UpsertDailyAnalytics(ctx context.Context, row agentsv1.DailyAnalytics) error
}

type BigQueryStore struct {
	client *bqclient.Client
}

func New(client *bqclient.Client) *BigQueryStore {
	return &BigQueryStore{client: client}
}

// ListAgents returns all agents ordered by creation time descending. When a
// cache is configured, results are served from it for a short window.
func (s *BigQueryStore) ListAgents(ctx context.Context) ([]agentsv1.Agent, error) {
	const cacheKey = "agent-list"

	if s.client.Cache != nil {
		if raw, err := s.client.Cache.Get(cacheKey); err == nil {
			var agents []agentsv1.Agent
			if err := json.Unmarshal(raw, &agents); err == nil {
				log.Debug("agent list cache hit")
				return agents, nil
			}
		}
	}

	query := s.client.BQ.Query(fmt.Sprintf(`
		SELECT *
		FROM %s
		ORDER BY created_at DESC`,
		"`"+agentsTableID(s.client)+"`"))

	agents, err := fetchAgents(ctx, query)
	if err != nil {
		return nil, err
	}

	if s.client.Cache != nil {
		if raw, err := json.Marshal(agents); err == nil {
			if err := s.client.Cache.Set(cacheKey, raw, agentListCacheDuration); err != nil {
				log.WithError(err).Warn("couldn't cache agent list")
			}
		}
	}

	return agents, nil
}

func (s *BigQueryStore) GetAgent(ctx context.Context, agentID string) (*agentsv1.Agent, error) {
	query := s.client.BQ.Query(fmt.Sprintf(`
		SELECT *
		FROM %s
		WHERE agent_id = @agent_id`,
		"`"+agentsTableID(s.client)+"`"))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "agent_id", Value: agentID},
	}

	agents, err := fetchAgents(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, ErrAgentNotFound
	}
	return &agents[0], nil
}

func (s *BigQueryStore) InsertAgent(ctx context.Context, agent agentsv1.Agent) error {
	inserter := s.client.BQ.Dataset(s.client.Dataset).Table(AgentsTable).Inserter()
	if err := inserter.Put(ctx, agent); err != nil {
		return errors.WithMessagef(err, "couldn't insert agent %s", agent.AgentID)
	}
	return nil
}

// UpdateAgentURL sets the service URL and flips the agent to active in a
// single statement.
func (s *BigQueryStore) UpdateAgentURL(ctx context.Context, agentID, url string) error {
	query := s.client.BQ.Query(fmt.Sprintf(`
		UPDATE %s
		SET cloud_run_url = @cloud_run_url,
		    status = @status,
		    updated_at = CURRENT_TIMESTAMP()
		WHERE agent_id = @agent_id`,
		"`"+agentsTableID(s.client)+"`"))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "cloud_run_url", Value: url},
		{Name: "status", Value: agentsv1.StatusActive},
		{Name: "agent_id", Value: agentID},
	}

	return runDML(ctx, query)
}

func (s *BigQueryStore) SetAgentStatus(ctx context.Context, agentID, status string) error {
	query := s.client.BQ.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    updated_at = CURRENT_TIMESTAMP()
		WHERE agent_id = @agent_id`,
		"`"+agentsTableID(s.client)+"`"))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: status},
		{Name: "agent_id", Value: agentID},
	}

	return runDML(ctx, query)
}

func (s *BigQueryStore) ListDocuments(ctx context.Context, agentID string) ([]agentsv1.Document, error) {
	query := s.client.BQ.Query(fmt.Sprintf(`
		SELECT *
		FROM %s
		WHERE agent_id = @agent_id
		ORDER BY uploaded_at DESC`,
		"`"+documentsTableID(s.client)+"`"))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "agent_id", Value: agentID},
	}

	it, err := bqclient.LoggedRead(ctx, query)
	if err != nil {
		return nil, err
	}

	docs := []agentsv1.Document{}
	for {
		var doc agentsv1.Document
		err := it.Next(&doc)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *BigQueryStore) InsertDocument(ctx context.Context, doc agentsv1.Document) error {
	inserter := s.client.BQ.Dataset(s.client.Dataset).Table(DocumentsTable).Inserter()
	if err := inserter.Put(ctx, doc); err != nil {
		return errors.WithMessagef(err, "couldn't insert document %s", doc.DocumentID)
	}
	return nil
}

// FindAgentsMissingURL returns agents whose deployment completed without a
// recorded service URL, newest first. Input to the repair pass.
func (s *BigQueryStore) FindAgentsMissingURL(ctx context.Context) ([]agentsv1.Agent, error) {
	query := s.client.BQ.Query(fmt.Sprintf(`
		SELECT *
		FROM %s
		WHERE cloud_run_url IS NULL
		   OR cloud_run_url = 'None'
		   OR cloud_run_url = ''
		ORDER BY created_at DESC`,
		"`"+agentsTableID(s.client)+"`"))

	return fetchAgents(ctx, query)
}

// UpsertDailyAnalytics writes one (agent, date) analytics row, replacing any
// existing row for the same key so the aggregation job can be re-run.
func (s *BigQueryStore) UpsertDailyAnalytics(ctx context.Context, row agentsv1.DailyAnalytics) error {
	query := s.client.BQ.Query(fmt.Sprintf(`
		MERGE %s t
		USING (SELECT @agent_id AS agent_id, @date AS date) k
		ON t.agent_id = k.agent_id AND t.date = k.date
		WHEN MATCHED THEN UPDATE SET
			total_conversations = @total_conversations,
			total_messages = @total_messages,
			unique_users = @unique_users
		WHEN NOT MATCHED THEN INSERT
			(agent_id, date, total_conversations, total_messages, unique_users)
			VALUES (@agent_id, @date, @total_conversations, @total_messages, @unique_users)`,
		"`"+dailyAnalyticsTableID(s.client)+"`"))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "agent_id", Value: row.AgentID},
		{Name: "date", Value: row.Date},
		{Name: "total_conversations", Value: row.TotalConversations.Int64},
		{Name: "total_messages", Value: row.TotalMessages.Int64},
		{Name: "unique_users", Value: row.UniqueUsers.Int64},
	}

	return runDML(ctx, query)
}

func fetchAgents(ctx context.Context, query *bigquery.Query) ([]agentsv1.Agent, error) {
	it, err := bqclient.LoggedRead(ctx, query)
	if err != nil {
		return nil, err
	}

	agents := []agentsv1.Agent{}
	for {
		var agent agentsv1.Agent
		err := it.Next(&agent)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

func runDML(ctx context.Context, query *bigquery.Query) error {
	job, err := query.Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}
