// Package backoffice is the admin HTTP server: agent listing and detail,
// document uploads, agent creation, and a manual test-message endpoint.
package backoffice

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	metricsmiddleware "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	middlewarestd "github.com/slok/go-http-metrics/middleware/std"
	log "github.com/sirupsen/logrus"

	agentsv1 "github.com/flowerclub/agentforge/pkg/apis/agents/v1"
	"github.com/flowerclub/agentforge/pkg/api"
	"github.com/flowerclub/agentforge/pkg/deployer"
	"github.com/flowerclub/agentforge/pkg/metastore"
)

const (
	testTimeout   = 30 * time.Second
	maxUploadSize = 32 << 20
)

//go:embed pages
var pageFS embed.FS

var pages = template.Must(template.ParseFS(pageFS, "pages/*.html"))

type Server struct {
	listenAddr string

	store    metastore.Store
	deployer *deployer.Deployer
	storage  *storage.Client
	bucket   string

	// ConfigAgentID selects which agent /api/config and /api/test target
	// when the request doesn't name one.
	ConfigAgentID string

	httpServer *http.Server
	testClient *http.Client
}

func New(listenAddr string, store metastore.Store, agentDeployer *deployer.Deployer, storageClient *storage.Client, bucket, configAgentID string) *Server {
	return &Server{
		listenAddr:    listenAddr,
		store:         store,
		deployer:      agentDeployer,
		storage:       storageClient,
		bucket:        bucket,
		ConfigAgentID: configAgentID,
		testClient:    &http.Client{Timeout: testTimeout},
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	api.RespondWithJSON(http.StatusOK, w, map[string]string{"status": "ok"})
}

func renderPage(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html;charset=UTF-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		log.WithError(err).WithField("page", name).Error("couldn't render admin page")
	}
}

func (s *Server) indexPage(w http.ResponseWriter, _ *http.Request) {
	renderPage(w, "index.html", nil)
}

func (s *Server) createAgentPage(w http.ResponseWriter, _ *http.Request) {
	renderPage(w, "create_agent.html", nil)
}

func (s *Server) agentPage(w http.ResponseWriter, req *http.Request) {
	renderPage(w, "agent.html", map[string]string{"AgentID": req.PathValue("id")})
}

func (s *Server) listAgents(w http.ResponseWriter, req *http.Request) {
	agents, err := s.store.ListAgents(req.Context())
	if err != nil {
		log.WithError(err).Error("couldn't list agents")
		api.RespondWithError(http.StatusInternalServerError, w, err.Error())
		return
	}
	api.RespondWithJSON(http.StatusOK, w, agents)
}

func (s *Server) getAgent(w http.ResponseWriter, req *http.Request) {
	agentID := req.PathValue("id")
	agent, err := s.store.GetAgent(req.Context(), agentID)
	if errors.Is(err, metastore.ErrAgentNotFound) {
		api.RespondWithError(http.StatusNotFound, w, "Agente não encontrado")
		return
	}
	if err != nil {
		log.WithError(err).WithField("agent", agentID).Error("couldn't fetch agent")
		api.RespondWithError(http.StatusInternalServerError, w, err.Error())
		return
	}
	api.RespondWithJSON(http.StatusOK, w, agent)
}

func (s *Server) listDocuments(w http.ResponseWriter, req *http.Request) {
	agentID := req.PathValue("id")
	docs, err := s.store.ListDocuments(req.Context(), agentID)
	if err != nil {
		log.WithError(err).WithField("agent", agentID).Error("couldn't list documents")
		api.RespondWithError(http.StatusInternalServerError, w, err.Error())
		return
	}
	api.RespondWithJSON(http.StatusOK, w, docs)
}

// uploadDocument stores an uploaded knowledge file in the documents bucket
// and records it in the metadata store. Processing happens out of band; the
// row starts in "uploaded" status.
func (s *Server) uploadDocument(w http.ResponseWriter, req *http.Request) {
	agentID := req.PathValue("id")

	if s.storage == nil {
		api.RespondWithError(http.StatusServiceUnavailable, w, "armazenamento de documentos não configurado")
		return
	}

	if _, err := s.store.GetAgent(req.Context(), agentID); err != nil {
		if errors.Is(err, metastore.ErrAgentNotFound) {
			api.RespondWithError(http.StatusNotFound, w, "Agente não encontrado")
			return
		}
		api.RespondWithError(http.StatusInternalServerError, w, err.Error())
		return
	}

	if err := req.ParseMultipartForm(maxUploadSize); err != nil {
		api.RespondWithError(http.StatusBadRequest, w, "upload inválido")
		return
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		api.RespondWithError(http.StatusBadRequest, w, "arquivo obrigatório")
		return
	}
	defer file.Close()

	documentID := uuid.NewString()
	objectPath := fmt.Sprintf("agents/%s/%s-%s", agentID, documentID, header.Filename)

	ctx := req.Context()
	obj := s.storage.Bucket(s.bucket).Object(objectPath)
	writer := obj.NewWriter(ctx)
	size, err := io.Copy(writer, file)
	if err != nil {
		writer.Close()
		log.WithError(err).Error("couldn't upload document to storage")
		api.RespondWithError(http.StatusInternalServerError, w, err.Error())
		return
	}
	if err := writer.Close(); err != nil {
		log.WithError(err).Error("couldn't finalize document upload")
		api.RespondWithError(http.StatusInternalServerError, w, err.Error())
		return
	}

	doc := agentsv1.Document{
		DocumentID:   documentID,
		AgentID:      agentID,
		DocumentName: header.Filename,
		FileType:     header.Header.Get("Content-Type"),
		FileSize:     bigquery.NullInt64{Int64: size, Valid: true},
		StoragePath:  bigquery.NullString{StringVal: fmt.Sprintf("gs://%s/%s", s.bucket, objectPath), Valid: true},
		UploadedAt:   time.Now().UTC(),
		Status:       "uploaded",
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		log.WithError(err).Error("couldn't record document metadata")
		api.RespondWithError(http.StatusInternalServerError, w, err.Error())
		return
	}

	api.RespondWithJSON(http.StatusCreated, w, doc)
}

func (s *Server) createAgent(w http.ResponseWriter, req *http.Request) {
	var cfg agentsv1.AgentConfig
	if err := json.NewDecoder(req.Body).Decode(&cfg); err != nil {
		api.RespondWithError(http.StatusBadRequest, w, "configuração inválida")
		return
	}
	if cfg.Name == "" || cfg.Type == "" || cfg.SystemPrompt == "" {
		api.RespondWithError(http.StatusBadRequest, w, "name, type e system_prompt são obrigatórios")
		return
	}

	// The pipeline outlives the request: a client disconnect during the
	// minutes-long build must not kill the gcloud subprocess or the
	// error-status update afterwards.
	result, err := s.deployer.Deploy(context.WithoutCancel(req.Context()), cfg)
	if err != nil {
		log.WithError(err).Error("agent deployment failed")
		// The step log shows how far the pipeline got; partial state is
		// left in place for inspection.
		api.RespondWithJSON(http.StatusInternalServerError, w, map[string]interface{}{
			"error":  err.Error(),
			"result": result,
		})
		return
	}

	api.RespondWithJSON(http.StatusOK, w, result)
}

// getConfig returns the configured agent's metadata, mirroring what the
// standalone admin panel needs.
func (s *Server) getConfig(w http.ResponseWriter, req *http.Request) {
	agent, err := s.store.GetAgent(req.Context(), s.ConfigAgentID)
	if err != nil {
		api.RespondWithError(http.StatusNotFound, w, "Não encontrado")
		return
	}
	api.RespondWithJSON(http.StatusOK, w, map[string]string{
		"agent_name":     agent.AgentName,
		"agent_type":     agent.AgentType,
		"specialization": agent.Specialization,
		"status":         agent.Status,
	})
}

type testRequest struct {
	Message string `json:"message"`
	AgentID string `json:"agent_id"`
}

// testAgent forwards a message to a deployed agent's /chat endpoint so an
// operator can exercise it from the backoffice.
func (s *Server) testAgent(w http.ResponseWriter, req *http.Request) {
	var tr testRequest
	if err := json.NewDecoder(req.Body).Decode(&tr); err != nil || tr.Message == "" {
		api.RespondWithError(http.StatusBadRequest, w, "Mensagem obrigatória")
		return
	}

	agentID := tr.AgentID
	if agentID == "" {
		agentID = s.ConfigAgentID
	}

	agent, err := s.store.GetAgent(req.Context(), agentID)
	if errors.Is(err, metastore.ErrAgentNotFound) {
		api.RespondWithError(http.StatusNotFound, w, "Agente não encontrado")
		return
	}
	if err != nil {
		api.RespondWithError(http.StatusInternalServerError, w, err.Error())
		return
	}
	if !agent.CloudRunURL.Valid || agent.CloudRunURL.StringVal == "" {
		api.RespondWithError(http.StatusConflict, w, "Agente sem URL de serviço")
		return
	}

	result, err := s.forwardTestMessage(req.Context(), agent.CloudRunURL.StringVal, tr.Message)
	if err != nil {
		api.RespondWithError(http.StatusInternalServerError, w, err.Error())
		return
	}
	api.RespondWithJSON(http.StatusOK, w, result)
}

func (s *Server) forwardTestMessage(ctx context.Context, agentURL, message string) (map[string]interface{}, error) {
	body, err := json.Marshal(map[string]string{
		"message":         message,
		"conversation_id": "admin-test",
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, agentURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.testClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Erro HTTP %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Server) routes() *http.ServeMux {
	serveMux := http.NewServeMux()
	serveMux.HandleFunc("GET /{$}", s.indexPage)
	serveMux.HandleFunc("GET /create-agent", s.createAgentPage)
	serveMux.HandleFunc("GET /agent/{id}", s.agentPage)
	serveMux.HandleFunc("GET /health", s.health)
	serveMux.HandleFunc("GET /api/agents", s.listAgents)
	serveMux.HandleFunc("GET /api/agents/{id}", s.getAgent)
	serveMux.HandleFunc("GET /api/agents/{id}/documents", s.listDocuments)
	serveMux.HandleFunc("POST /api/agents/{id}/documents", s.uploadDocument)
	serveMux.HandleFunc("POST /api/create-agent", s.createAgent)
	serveMux.HandleFunc("GET /api/config", s.getConfig)
	serveMux.HandleFunc("POST /api/test", s.testAgent)
	return serveMux
}

// Handler returns the admin route table wrapped in the metrics middleware.
func (s *Server) Handler() http.Handler {
	mdlw := middleware.New(middleware.Config{
		Recorder: metricsmiddleware.NewRecorder(metricsmiddleware.Config{}),
	})
	return middlewarestd.Handler("", mdlw, s.routes())
}

func (s *Server) Serve() error {
	s.httpServer = &http.Server{
		Addr:    s.listenAddr,
		Handler: s.Handler(),
	}

	log.WithField("addr", s.listenAddr).Info("serving backoffice")
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
