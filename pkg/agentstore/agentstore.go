// Package agentstore manages the per-agent warehouse dataset: provisioning
// at deploy time and conversation history reads/appends at chat time.
package agentstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"

	agentsv1 "github.com/flowerclub/agentforge/pkg/apis/agents/v1"
	bqclient "github.com/flowerclub/agentforge/pkg/bigquery"
)

const (
	ConversationsTable      = "conversations"
	MessagesTable           = "messages"
	DocumentsProcessedTable = "documents_processed"

	historyLimit = 10
)

var conversationsSchema = bigquery.Schema{
	{Name: "conversation_id", Type: bigquery.StringFieldType},
	{Name: "user_id", Type: bigquery.StringFieldType},
	{Name: "started_at", Type: bigquery.TimestampFieldType},
	{Name: "ended_at", Type: bigquery.TimestampFieldType},
	{Name: "status", Type: bigquery.StringFieldType},
	{Name: "message_count", Type: bigquery.IntegerFieldType},
}

var messagesSchema = bigquery.Schema{
	{Name: "message_id", Type: bigquery.StringFieldType},
	{Name: "conversation_id", Type: bigquery.StringFieldType},
	{Name: "role", Type: bigquery.StringFieldType},
	{Name: "content", Type: bigquery.StringFieldType},
	{Name: "timestamp", Type: bigquery.TimestampFieldType},
	{Name: "tokens_used", Type: bigquery.IntegerFieldType},
}

var documentsProcessedSchema = bigquery.Schema{
	{Name: "document_id", Type: bigquery.StringFieldType},
	{Name: "filename", Type: bigquery.StringFieldType},
	{Name: "processed_at", Type: bigquery.TimestampFieldType},
	{Name: "content_summary", Type: bigquery.StringFieldType},
	{Name: "embedding_stored", Type: bigquery.BooleanFieldType},
}

// DatasetName derives the per-agent dataset name from the agent identifier.
func DatasetName(agentID string) string {
	return "agent_" + strings.ReplaceAll(agentID, "-", "_")
}

// Provisioner creates an agent's dataset and tables. The deployer depends on
// this interface so the pipeline can be tested without a live warehouse.
type Provisioner interface {
	EnsureAgentDataset(ctx context.Context, agentID string) (string, error)
}

type Store struct {
	client   *bqclient.Client
	location string

	// DatasetName is set on per-agent service instances; the provisioning
	// path derives it from the agent identifier instead.
	Dataset string
}

func New(client *bqclient.Client, location string) *Store {
	return &Store{client: client, location: location}
}

// ForAgent returns a store bound to the given agent's dataset.
func ForAgent(client *bqclient.Client, agentID string) *Store {
	return &Store{client: client, Dataset: DatasetName(agentID)}
}

// EnsureAgentDataset creates the dedicated dataset plus the conversations,
// messages and documents_processed tables. "Already exists" counts as
// success, so re-running provisioning for the same agent is safe.
func (s *Store) EnsureAgentDataset(ctx context.Context, agentID string) (string, error) {
	name := DatasetName(agentID)
	dataset := s.client.BQ.Dataset(name)

	err := dataset.Create(ctx, &bigquery.DatasetMetadata{
		Location:    s.location,
		Description: fmt.Sprintf("Dataset for agent %s", agentID),
	})
	if err != nil && !bqclient.IsAlreadyExists(err) {
		return "", errors.WithMessagef(err, "couldn't create dataset %s", name)
	}
	log.WithField("dataset", name).Info("agent dataset ready")

	tables := map[string]bigquery.Schema{
		ConversationsTable:      conversationsSchema,
		MessagesTable:           messagesSchema,
		DocumentsProcessedTable: documentsProcessedSchema,
	}
	for table, schema := range tables {
		err := dataset.Table(table).Create(ctx, &bigquery.TableMetadata{Schema: schema})
		if err != nil && !bqclient.IsAlreadyExists(err) {
			return "", errors.WithMessagef(err, "couldn't create table %s.%s", name, table)
		}
		log.WithFields(log.Fields{"dataset": name, "table": table}).Info("agent table ready")
	}

	return name, nil
}

// History returns the most recent turns of a conversation rendered as a
// "role: content" text block, oldest first. Errors degrade to an empty
// history so a warehouse hiccup never blocks a chat reply.
func (s *Store) History(ctx context.Context, conversationID string) string {
	query := s.client.BQ.Query(fmt.Sprintf(`
		SELECT message_id, conversation_id, role, content, timestamp, tokens_used
		FROM %s
		WHERE conversation_id = @conversation_id
		ORDER BY timestamp DESC
		LIMIT %d`,
		"`"+s.tableID(MessagesTable)+"`", historyLimit))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "conversation_id", Value: conversationID},
	}

	it, err := bqclient.LoggedRead(ctx, query)
	if err != nil {
		log.WithError(err).Warn("couldn't fetch conversation history")
		return ""
	}

	messages := []agentsv1.Message{}
	for {
		var msg agentsv1.Message
		err := it.Next(&msg)
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.WithError(err).Warn("couldn't read conversation history row")
			return ""
		}
		messages = append(messages, msg)
	}

	var sb strings.Builder
	for i := len(messages) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%s: %s\n", messages[i].Role, messages[i].Content)
	}
	return sb.String()
}

// SaveExchange appends the user and assistant turns of one chat round.
// Token usage is recorded on the assistant row. Failures are logged, not
// surfaced: the reply has already been generated.
func (s *Store) SaveExchange(ctx context.Context, conversationID, userMessage, assistantMessage string, tokensUsed int64) {
	now := time.Now().UTC()
	rows := []agentsv1.Message{
		{
			MessageID:      uuid.NewString(),
			ConversationID: conversationID,
			Role:           "user",
			Content:        userMessage,
			Timestamp:      now,
		},
		{
			MessageID:      uuid.NewString(),
			ConversationID: conversationID,
			Role:           "assistant",
			Content:        assistantMessage,
			Timestamp:      now,
			TokensUsed:     tokensUsed,
		},
	}

	inserter := s.client.BQ.Dataset(s.Dataset).Table(MessagesTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		log.WithError(err).Error("couldn't save chat exchange")
	}
}

// DailyStats aggregates one UTC day of chat activity from the agent's
// messages table: conversations touched, total turns stored.
func (s *Store) DailyStats(ctx context.Context, day civil.Date) (conversations, messages int64, err error) {
	query := s.client.BQ.Query(fmt.Sprintf(`
		SELECT COUNT(DISTINCT conversation_id) AS conversations, COUNT(*) AS messages
		FROM %s
		WHERE DATE(timestamp) = @day`,
		"`"+s.tableID(MessagesTable)+"`"))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "day", Value: day},
	}

	it, err := bqclient.LoggedRead(ctx, query)
	if err != nil {
		return 0, 0, errors.WithMessage(err, "couldn't aggregate daily stats")
	}

	var row struct {
		Conversations int64 `bigquery:"conversations"`
		Messages      int64 `bigquery:"messages"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return 0, 0, err
	}
	return row.Conversations, row.Messages, nil
}

func (s *Store) tableID(table string) string {
	return fmt.Sprintf("%s.%s.%s", s.client.Project, s.Dataset, table)
}
