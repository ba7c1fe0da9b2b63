package api

import (
	"context"
	"errors"
	"net/http"

	"postflow/internal/dto/req"
	"postflow/internal/dto/resp"
	"postflow/internal/middleware"
	"postflow/internal/model"
	"postflow/internal/repository"
	"postflow/internal/service"
	v1 "postflow/pkg/api/v1"
	"postflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type JobProvider interface {
	CreateJob(ctx context.Context, userID string, in service.CreateJobInput) (*model.ScheduledJob, error)
	CancelJob(ctx context.Context, userID, jobID, organizationID string) error
	GetJob(ctx context.Context, userID, jobID, organizationID string) (*v1.Job, error)
	SetOrganizationSecret(ctx context.Context, userID, organizationID, platform, value string) error
}

type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type JobHandler struct {
	service JobProvider
	health  HealthChecker
}

func NewJobHandler(service JobProvider, health HealthChecker) *JobHandler {
	return &JobHandler{
		service: service,
		health:  health,
	}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var r req.CreateJobRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "JSON format error"})
		return
	}

	userID := service.GetCallerID(c.Request.Context())
	job, err := h.service.CreateJob(c.Request.Context(), userID, service.CreateJobInput{
		Content:        r.Content,
		Platforms:      r.Platforms,
		Media:          r.Media,
		PublishAt:      r.PublishAt,
		Timezone:       r.Timezone,
		OrganizationID: r.OrganizationID,
		Metadata:       r.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp.CreateJobResponse{
		Success:     true,
		JobID:       job.ID,
		ScheduledAt: job.ScheduledAt,
		Status:      job.Status,
	})
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	var r req.CancelJobRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "jobId and organizationId are required"})
		return
	}

	userID := service.GetCallerID(c.Request.Context())
	if err := h.service.CancelJob(c.Request.Context(), userID, r.JobID, r.OrganizationID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.CancelJobResponse{Success: true, JobID: r.JobID})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	var uri req.JobURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "invalid job id"})
		return
	}
	var q req.GetJobQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "organizationId is required"})
		return
	}

	userID := service.GetCallerID(c.Request.Context())
	job, err := h.service.GetJob(c.Request.Context(), userID, uri.JobID, q.OrganizationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.GetJobResponse{Success: true, Job: *job})
}

func (h *JobHandler) SetSecret(c *gin.Context) {
	var path req.SecretPath
	if err := c.ShouldBindUri(&path); err != nil {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "invalid path"})
		return
	}
	var r req.SetSecretRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: "value is required"})
		return
	}

	userID := service.GetCallerID(c.Request.Context())
	if err := h.service.SetOrganizationSecret(c.Request.Context(), userID, path.OrganizationID, path.Platform, r.Value); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.SetSecretResponse{
		Success:        true,
		OrganizationID: path.OrganizationID,
		Platform:       path.Platform,
	})
}

func (h *JobHandler) HealthCheck(c *gin.Context) {
	if err := h.health.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, resp.ErrorResponse{Error: verr.Error()})
	case errors.Is(err, service.ErrForbidden), errors.Is(err, repository.ErrJobForbidden):
		c.JSON(http.StatusForbidden, resp.ErrorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrJobNotFound):
		c.JSON(http.StatusNotFound, resp.ErrorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrJobNotCancellable):
		c.JSON(http.StatusConflict, resp.ErrorResponse{Error: err.Error()})
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("trace_id", c.GetString(middleware.TraceIDKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, resp.ErrorResponse{Error: "internal error"})
	}
}
