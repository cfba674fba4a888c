package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studiare/tuition-billing/internal/service"
	appErrors "github.com/studiare/tuition-billing/pkg/errors"
	"github.com/studiare/tuition-billing/pkg/response"
)

// BillingHandler exposes the authenticated trigger endpoints. Every trigger
// enqueues a job and returns 202; the worker queue does the actual billing
// work and retries technical failures.
type BillingHandler struct {
	dispatcher *service.Dispatcher
}

// NewBillingHandler constructs BillingHandler.
func NewBillingHandler(dispatcher *service.Dispatcher) *BillingHandler {
	return &BillingHandler{dispatcher: dispatcher}
}

// Generate handles POST /billing/enrollments/:id/generate.
func (h *BillingHandler) Generate(c *gin.Context) {
	enrollmentID := c.Param("id")
	if enrollmentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "enrollment id is required"))
		return
	}
	if err := h.dispatcher.Enqueue(service.JobGenerateSchedule, service.GenerateSchedulePayload{EnrollmentID: enrollmentID}); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"queued": true, "enrollment_id": enrollmentID})
}

// Propagate handles POST /billing/enrollments/:id/propagate.
func (h *BillingHandler) Propagate(c *gin.Context) {
	enrollmentID := c.Param("id")
	if enrollmentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "enrollment id is required"))
		return
	}
	if err := h.dispatcher.Enqueue(service.JobPropagateChange, service.PropagateChangePayload{EnrollmentID: enrollmentID}); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"queued": true, "enrollment_id": enrollmentID})
}

type accrualRunRequest struct {
	SchoolID string `json:"school_id"`
}

// RunAccrual handles POST /billing/accruals/run. An empty body runs the
// batch across all schools.
func (h *BillingHandler) RunAccrual(c *gin.Context) {
	var req accrualRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	if err := h.dispatcher.Enqueue(service.JobAccrueInterest, service.AccrueInterestPayload{SchoolID: req.SchoolID}); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"queued": true, "school_id": req.SchoolID})
}

// MarkOverdue handles POST /billing/overdue/sweep.
func (h *BillingHandler) MarkOverdue(c *gin.Context) {
	var req accrualRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	if err := h.dispatcher.Enqueue(service.JobMarkOverdue, service.MarkOverduePayload{SchoolID: req.SchoolID}); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"queued": true, "school_id": req.SchoolID})
}
