package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/repo"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// maxBodySize — ограничение на тело запроса и S3-события.
	maxBodySize = 1 << 20
)

var startTime = time.Now()

// Health отвечает на проверку живости.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok %s", time.Since(startTime).Truncate(time.Second))
}

// ListDeployments возвращает список деплоев с фильтрацией.
// GET /api/v1/deployments?repo=...&status=...&limit=...&offset=...
func (h *Handler) ListDeployments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repo.DeploymentFilter{
		Repo:  query.Get("repo"),
		Limit: defaultListLimit,
	}

	if status := query.Get("status"); status != "" {
		filter.Status = domain.ParseDeploymentStatus(status)
		if filter.Status == "" {
			BadRequest(w, "invalid status")
			return
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > maxListLimit {
			BadRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
			return
		}
		filter.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			BadRequest(w, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	deployments, err := h.store.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]DeploymentResponse, len(deployments))
	for i, d := range deployments {
		result[i] = DeploymentFromDomain(d)
	}

	List(w, result, len(result))
}

// CreateDeployment принимает триггер деплоя.
// POST /api/v1/deployments
func (h *Handler) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req CreateDeploymentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	var (
		d      *domain.Deployment
		source string
	)
	switch {
	case req.Info != nil && req.Source != nil:
		BadRequest(w, "either info or source must be set, not both")
		return
	case req.Info != nil:
		if err := req.Info.Validate(); err != nil {
			BadRequest(w, err.Error())
			return
		}
		d = domain.NewDeployment(*req.Info, nil)
		source = "info"
	case req.Source != nil:
		if err := req.Source.Validate(); err != nil {
			BadRequest(w, err.Error())
			return
		}
		d = domain.NewDeployment(domain.DeploymentInfo{}, req.Source)
		source = "pointer"
	default:
		BadRequest(w, "either info or source must be set")
		return
	}

	h.accept(w, r, d, source)
}

// ObjectEvent принимает уведомление S3 о новом объекте-указателе.
// POST /api/v1/events/s3
func (h *Handler) ObjectEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	ptr, err := domain.ParseObjectEvent(body)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	h.accept(w, r, domain.NewDeployment(domain.DeploymentInfo{}, &ptr), "event")
}

// accept сохраняет новый деплой и уведомляет оркестратор.
func (h *Handler) accept(w http.ResponseWriter, r *http.Request, d *domain.Deployment, source string) {
	if err := h.store.Create(r.Context(), d); err != nil {
		InternalError(w, h.logger, err)
		return
	}
	h.metrics.DeploymentRequested(source)

	if h.requester != nil {
		if err := h.requester.PublishDeploymentRequested(r.Context(), d.ID); err != nil {
			// Деплой уже сохранён: оркестратор подберёт его polling'ом
			h.logger.Warn("failed to publish deployment.requested", "deployment_id", d.ID, "error", err)
		}
	}

	h.logger.Info("deployment accepted", "deployment_id", d.ID, "source", source)
	Accepted(w, DeploymentFromDomain(*d))
}

// GetDeployment возвращает деплой по ID.
// GET /api/v1/deployments/{id}
func (h *Handler) GetDeployment(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDeployment(w, r)
	if !ok {
		return
	}
	Success(w, DeploymentFromDomain(*d))
}

// GetDefinition возвращает скомпилированный граф деплоя как есть.
// GET /api/v1/deployments/{id}/definition
func (h *Handler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDeployment(w, r)
	if !ok {
		return
	}
	if len(d.Definition) == 0 {
		NotFound(w, "deployment has no definition yet")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(d.Definition)
}

func (h *Handler) loadDeployment(w http.ResponseWriter, r *http.Request) (*domain.Deployment, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid deployment id")
		return nil, false
	}

	d, err := h.store.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "deployment not found") {
		return nil, false
	}
	return d, true
}
