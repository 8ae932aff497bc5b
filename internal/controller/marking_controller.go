package controller

import (
	"net/http"

	"survey_marking_backend/internal/service"
	"survey_marking_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type MarkingController struct {
	Marking *service.MarkingService
	Batch   *service.BatchMarkingService
}

func NewMarkingController(marking *service.MarkingService, batch *service.BatchMarkingService) *MarkingController {
	return &MarkingController{Marking: marking, Batch: batch}
}

type batchRequest struct {
	SessionIDs []uint `json:"sessionIds" binding:"required,min=1"`
	SchemeID   *uint  `json:"schemeId"`
	Async      bool   `json:"async"`
}

// @Summary 评分
// @Tags 评分
// @Param id path int true "答卷ID"
// @Param schemeId query int false "评分方案ID，默认使用启用的方案"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/mark [post]
func (c *MarkingController) Mark(ctx *gin.Context) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	result, err := c.Marking.Mark(ctx.Request.Context(), id, util.OptionalUint(ctx.Query("schemeId")))
	if err != nil {
		markingError(ctx, err)
		return
	}
	if !result.Marked {
		util.Error(ctx, http.StatusConflict, result.Reason)
		return
	}
	util.Success(ctx, result)
}

// @Summary 批量评分
// @Tags 评分
// @Accept json
// @Success 200 {object} util.Response
// @Router /api/marking/batches [post]
func (c *MarkingController) MarkBatch(ctx *gin.Context) {
	var req batchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if req.Async {
		status, err := c.Batch.EnqueueBatch(ctx.Request.Context(), req.SessionIDs, req.SchemeID)
		if err != nil {
			util.LogInternalError(ctx, err)
			return
		}
		ctx.JSON(http.StatusAccepted, util.Response{Code: http.StatusAccepted, Message: "queued", Data: status})
		return
	}
	status, err := c.Batch.MarkBatch(ctx.Request.Context(), req.SessionIDs, req.SchemeID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// @Summary 批量评分进度
// @Tags 评分
// @Param batchId path string true "批次ID"
// @Success 200 {object} util.Response
// @Router /api/marking/batches/{batchId} [get]
func (c *MarkingController) BatchStatus(ctx *gin.Context) {
	status, err := c.Batch.BatchStatus(ctx.Request.Context(), ctx.Param("batchId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"status": status, "progress": status.Progress()})
}

func markingError(ctx *gin.Context, err error) {
	msg := service.MarkingErrorMessage(err)
	switch service.ClassifyMarkingError(err) {
	case service.MarkingErrNoScheme, service.MarkingErrNotFound:
		util.Error(ctx, http.StatusNotFound, msg)
	case service.MarkingErrNothingToGrade, service.MarkingErrInvalidConfig:
		util.Error(ctx, http.StatusUnprocessableEntity, msg)
	default:
		util.LogInternalError(ctx, err)
	}
}
