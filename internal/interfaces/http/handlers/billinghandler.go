package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bookwise-inc/bookwise/internal/application/billing/usecases"
	"github.com/bookwise-inc/bookwise/internal/infrastructure/scheduler"
	"github.com/bookwise-inc/bookwise/internal/shared/constants"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
	"github.com/bookwise-inc/bookwise/internal/shared/utils"
)

// BillingJobs is implemented by scheduler.SchedulerManager.
type BillingJobs interface {
	RunValidations(ctx context.Context) (*usecases.ValidationSummary, error)
	RunRenewals(ctx context.Context) (*usecases.RenewalSummary, error)
	Status() scheduler.Status
}

type BillingHandler struct {
	jobs   BillingJobs
	logger logger.Interface
}

func NewBillingHandler(jobs BillingJobs, logger logger.Interface) *BillingHandler {
	return &BillingHandler{
		jobs:   jobs,
		logger: logger,
	}
}

// RunValidations triggers one validation pass and returns its summary.
//
//	@Router	/admin/billing/validations [post]
func (h *BillingHandler) RunValidations(c *gin.Context) {
	h.logger.Infow("manual validation run requested", "admin", c.GetString(constants.ContextKeyAdminSub))

	summary, err := h.jobs.RunValidations(c.Request.Context())
	if err != nil {
		h.respondRunError(c, "validations", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "validation run completed", summary)
}

// RunRenewals triggers one renewal pass and returns its summary.
//
//	@Router	/admin/billing/renewals [post]
func (h *BillingHandler) RunRenewals(c *gin.Context) {
	h.logger.Infow("manual renewal run requested", "admin", c.GetString(constants.ContextKeyAdminSub))

	summary, err := h.jobs.RunRenewals(c.Request.Context())
	if err != nil {
		h.respondRunError(c, "renewals", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "renewal run completed", summary)
}

//	@Router	/admin/billing/scheduler [get]
func (h *BillingHandler) SchedulerStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "", h.jobs.Status())
}

func (h *BillingHandler) respondRunError(c *gin.Context, job string, err error) {
	if errors.Is(err, scheduler.ErrJobRunning) {
		utils.ErrorResponse(c, http.StatusConflict, "billing "+job+" already running")
		return
	}
	h.logger.Errorw("manual billing run failed", "job", job, "error", err)
	utils.ErrorResponseWithError(c, err)
}
