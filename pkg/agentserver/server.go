// Package agentserver is the HTTP service run by each deployed agent: a chat
// UI, a health endpoint, and the /chat API backed by the Chat Responder.
package agentserver

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	metricsmiddleware "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	middlewarestd "github.com/slok/go-http-metrics/middleware/std"
	log "github.com/sirupsen/logrus"

	"github.com/flowerclub/agentforge/pkg/api"
	"github.com/flowerclub/agentforge/pkg/chat"
)

// Version is reported by /health and on every chat response.
const Version = "3.4"

//go:embed chat.html
var pageFS embed.FS

var (
	chatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentforge_chat_requests_total",
		Help: "Chat requests handled, by outcome",
	}, []string{"outcome"})

	chatDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentforge_chat_duration_seconds",
		Help:    "End-to-end chat request duration",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

// History reads and appends conversation turns for this agent. Nil on the
// admin-facing path, which sends no multi-turn history to the LLM.
type History interface {
	History(ctx context.Context, conversationID string) string
	SaveExchange(ctx context.Context, conversationID, userMessage, assistantMessage string, tokensUsed int64)
}

type Server struct {
	listenAddr string

	AgentID      string
	AgentName    string
	AgentType    string
	SystemPrompt string

	responder  *chat.Responder
	history    History
	page       *template.Template
	httpServer *http.Server
}

func New(listenAddr, agentID, agentName, agentType, systemPrompt string, responder *chat.Responder, history History) *Server {
	page := template.Must(template.ParseFS(pageFS, "chat.html"))
	return &Server{
		listenAddr:   listenAddr,
		AgentID:      agentID,
		AgentName:    agentName,
		AgentType:    agentType,
		SystemPrompt: systemPrompt,
		responder:    responder,
		history:      history,
		page:         page,
	}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type chatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id,omitempty"`
	HasRealData    bool   `json:"has_real_data"`
	AgentName      string `json:"agent_name"`
	Version        string `json:"version"`
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html;charset=UTF-8")
	err := s.page.Execute(w, map[string]string{
		"AgentName": s.AgentName,
		"AgentType": s.AgentType,
	})
	if err != nil {
		log.WithError(err).Error("couldn't render chat page")
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	api.RespondWithJSON(http.StatusOK, w, map[string]interface{}{
		"status":       "ok",
		"agent":        s.AgentName,
		"version":      Version,
		"cors_enabled": true,
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (s *Server) handleChat(w http.ResponseWriter, req *http.Request) {
	setCORSHeaders(w)

	if req.Method == http.MethodOptions {
		api.RespondWithJSON(http.StatusOK, w, map[string]string{"status": "ok"})
		return
	}
	if req.Method != http.MethodPost {
		api.RespondWithError(http.StatusMethodNotAllowed, w, "método não permitido")
		return
	}

	start := time.Now()

	var cr chatRequest
	if err := json.NewDecoder(req.Body).Decode(&cr); err != nil || cr.Message == "" {
		chatRequests.WithLabelValues("bad_request").Inc()
		api.RespondWithError(http.StatusBadRequest, w, "Mensagem obrigatória")
		return
	}

	conversationID := cr.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	ctx := req.Context()
	historyBlock := ""
	if s.history != nil {
		historyBlock = s.history.History(ctx, conversationID)
	}

	reply, err := s.responder.Respond(ctx, s.SystemPrompt, historyBlock, cr.Message)
	if err != nil {
		chatRequests.WithLabelValues("error").Inc()
		log.WithError(err).Error("couldn't answer chat message")
		api.RespondWithError(http.StatusInternalServerError, w, "API key não encontrada")
		return
	}

	if s.history != nil {
		s.history.SaveExchange(ctx, conversationID, cr.Message, reply.Text, reply.TokensUsed)
	}

	chatRequests.WithLabelValues("ok").Inc()
	chatDuration.Observe(time.Since(start).Seconds())

	api.RespondWithJSON(http.StatusOK, w, chatResponse{
		Response:       reply.Text,
		ConversationID: conversationID,
		HasRealData:    reply.HasRealData,
		AgentName:      s.AgentName,
		Version:        Version,
	})
}

// Handler returns the full route table, wrapped in the HTTP metrics
// middleware. Exposed for tests.
func (s *Server) Handler() http.Handler {
	serveMux := http.NewServeMux()
	serveMux.HandleFunc("/", s.index)
	serveMux.HandleFunc("/health", s.health)
	serveMux.HandleFunc("/chat", s.handleChat)

	mdlw := middleware.New(middleware.Config{
		Recorder: metricsmiddleware.NewRecorder(metricsmiddleware.Config{}),
	})
	return middlewarestd.Handler("", mdlw, serveMux)
}

func (s *Server) Serve() error {
	s.httpServer = &http.Server{
		Addr:    s.listenAddr,
		Handler: s.Handler(),
	}

	log.WithFields(log.Fields{"agent": s.AgentID, "addr": s.listenAddr}).Info("serving agent chat")
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
