package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsgraph/internal/api"
	"newsgraph/internal/config"
	"newsgraph/internal/content"
	"newsgraph/internal/logging"
	"newsgraph/internal/queue"
	"newsgraph/internal/services"
)

const (
	maxRequestBody      = 8 << 20
	defaultFailureLimit = 50
)

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/articles", srv.handleSubmitArticle)
	mux.HandleFunc("POST /api/fragments", srv.handleSubmitFragment)
	mux.HandleFunc("GET /api/items", srv.handleListItems)
	mux.HandleFunc("GET /api/items/{id}", srv.handleItem)
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	mux.HandleFunc("GET /api/failures", srv.handleFailures)
	mux.HandleFunc("POST /api/failures/{id}/retry", srv.handleRetryFailure)
	srv.handler = authMiddleware(cfg.API.Token, withRequestID(mux))

	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// withRequestID stamps every request context with the caller's request id,
// or a generated one, and echoes it back.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(api.RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(api.RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), requestID)))
	})
}

func (s *apiServer) start() error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "api_server_error"),
			)
		}
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

func (s *apiServer) stop(ctx context.Context) {
	if s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.listener = nil
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmitArticle(w http.ResponseWriter, r *http.Request) {
	var req api.ArticleRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.submit(w, r, req.Item())
}

func (s *apiServer) handleSubmitFragment(w http.ResponseWriter, r *http.Request) {
	var req api.FragmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.submit(w, r, req.Item())
}

func (s *apiServer) submit(w http.ResponseWriter, r *http.Request, item *content.Item) {
	requestID, _ := services.RequestIDFromContext(r.Context())
	if err := s.daemon.workflow.Enqueue(r.Context(), item); err != nil {
		s.writeEnqueueError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{
		ItemID:    item.ID,
		Status:    string(queue.StatusQueued),
		RequestID: requestID,
	})
}

func (s *apiServer) handleItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	item, err := s.daemon.workflow.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), services.ClassInternal)
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "item not found", services.ClassNone)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemResponse{Item: api.FromQueueItem(item)})
}

func (s *apiServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			status, ok := queue.ParseStatus(trimmed)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", trimmed), services.ClassValidation)
				return
			}
			statuses = append(statuses, status)
		}
	}
	items, err := s.daemon.workflow.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), services.ClassInternal)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemListResponse{Items: api.FromQueueItems(items)})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Health(r.Context()))
}

func (s *apiServer) handleFailures(w http.ResponseWriter, r *http.Request) {
	limit := defaultFailureLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer", services.ClassValidation)
			return
		}
		limit = parsed
	}
	records, err := s.daemon.knowledge.ListFailures(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), services.ClassPersistence)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FailureListResponse{Failures: api.FromFailures(records)})
}

func (s *apiServer) handleRetryFailure(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid failure id", services.ClassValidation)
		return
	}
	resp, err := s.daemon.RetryFailure(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error(), services.ClassNone)
			return
		}
		s.writeEnqueueError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		msg := "invalid request body"
		if !errors.Is(err, io.EOF) {
			msg = fmt.Sprintf("invalid request body: %v", err)
		}
		s.writeError(w, http.StatusBadRequest, msg, services.ClassValidation)
		return false
	}
	return true
}

func (s *apiServer) writeEnqueueError(w http.ResponseWriter, err error) {
	class := services.Classify(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	case errors.Is(err, queue.ErrDuplicate):
		status = http.StatusConflict
	case class == services.ClassValidation:
		status = http.StatusBadRequest
	case class == services.ClassBackpressure:
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", "1")
	}
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(s.logger, "submission failed", "submit_failed",
			logging.String(logging.FieldErrorHint, "check status database access"),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error(), class)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string, class services.Classification) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Classification: string(class)})
}

// Health assembles the health surface from the controller, the phases, the
// stores and the registered external services.
func (d *Daemon) Health(ctx context.Context) api.HealthResponse {
	resp := api.HealthResponse{
		Pipeline: api.FromWorkflowHealth(d.workflow.Health()),
		Stages:   api.FromStageHealth(d.workflow.StageHealth(ctx)),
	}

	if stats, err := d.queue.Stats(ctx); err == nil {
		resp.QueueStats = api.FromQueueStats(stats)
	}
	statusStore := api.StageHealth{Name: "status_store", Ready: true}
	if dbHealth, err := d.queue.CheckHealth(ctx); err != nil {
		statusStore = api.StageHealth{Name: "status_store", Detail: err.Error()}
	} else if dbHealth.Error != "" || !dbHealth.IntegrityCheck {
		statusStore = api.StageHealth{Name: "status_store", Detail: strings.TrimSpace("integrity check failed " + dbHealth.Error)}
	}
	resp.Services = append(resp.Services, statusStore)

	knowledgeStore := api.StageHealth{Name: "knowledge_store", Ready: true}
	if err := d.knowledge.Ping(ctx); err != nil {
		knowledgeStore = api.StageHealth{Name: "knowledge_store", Detail: err.Error()}
	} else if stats, err := d.knowledge.Stats(ctx); err == nil {
		resp.Knowledge = api.FromKnowledgeStats(stats)
	}
	resp.Services = append(resp.Services, knowledgeStore)

	names := make([]string, 0, len(d.services))
	for name := range d.services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry := api.StageHealth{Name: name, Ready: true}
		if err := d.services[name].HealthCheck(ctx); err != nil {
			entry = api.StageHealth{Name: name, Detail: err.Error()}
		}
		resp.Services = append(resp.Services, entry)
	}
	return resp
}

// RetryFailure re-enqueues the item stored with a persistent failure and
// marks the failure retried.
func (d *Daemon) RetryFailure(ctx context.Context, id int64) (api.RetryResponse, error) {
	rec, err := d.knowledge.Failure(ctx, id)
	if err != nil {
		return api.RetryResponse{}, fmt.Errorf("load failure %d: %w", id, err)
	}
	if rec == nil {
		return api.RetryResponse{}, services.Wrap(services.ErrNotFound, "daemon", "retry", fmt.Sprintf("failure %d not found", id), nil)
	}
	var item content.Item
	if err := json.Unmarshal([]byte(rec.ItemJSON), &item); err != nil {
		return api.RetryResponse{}, services.Wrap(services.ErrValidation, "daemon", "retry", "stored item is not decodable", err)
	}

	if err := d.workflow.Enqueue(ctx, &item); err != nil {
		return api.RetryResponse{}, err
	}
	if err := d.knowledge.MarkRetried(ctx, id); err != nil {
		d.logger.Warn("failed to mark failure retried",
			logging.Int64("failure_id", id),
			logging.Error(err),
			logging.String(logging.FieldEventType, "failure_mark_failed"),
			logging.String(logging.FieldErrorHint, "check knowledge database access"),
		)
	}
	requestID, _ := services.RequestIDFromContext(ctx)
	d.logger.Info("failure re-enqueued",
		logging.String(logging.FieldEventType, "failure_retry"),
		logging.Int64("failure_id", id),
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldCorrelationID, requestID),
	)
	return api.RetryResponse{
		FailureID: id,
		Submitted: api.SubmitResponse{ItemID: item.ID, Status: string(queue.StatusQueued), RequestID: requestID},
	}, nil
}
