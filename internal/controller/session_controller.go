package controller

import (
	"context"

	"survey_marking_backend/internal/model"
	"survey_marking_backend/internal/service"
	"survey_marking_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	Service *service.SessionService
}

func NewSessionController(svc *service.SessionService) *SessionController {
	return &SessionController{Service: svc}
}

type startSessionRequest struct {
	UserID uint `json:"userId" binding:"required"`
}

// @Summary 开始答卷
// @Tags 答卷
// @Accept json
// @Produce json
// @Param id path int true "评估ID"
// @Success 201 {object} util.Response
// @Router /api/assessments/{id}/sessions [post]
func (c *SessionController) StartSession(ctx *gin.Context) {
	assessmentID, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	var req startSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	session, err := c.Service.StartSession(ctx.Request.Context(), req.UserID, assessmentID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, session)
}

// @Summary 获取答卷
// @Tags 答卷
// @Produce json
// @Param id path int true "答卷ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id} [get]
func (c *SessionController) GetSession(ctx *gin.Context) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	session, err := c.Service.Get(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	responses, err := c.Service.Responses(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"session": session, "responses": responses})
}

// @Summary 保存回答
// @Tags 答卷
// @Accept json
// @Produce json
// @Param id path int true "答卷ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/responses [put]
func (c *SessionController) SaveResponse(ctx *gin.Context) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	var req service.SaveResponseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	resp, err := c.Service.SaveResponse(ctx.Request.Context(), id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, resp)
}

// @Summary 清除回答
// @Tags 答卷
// @Param id path int true "答卷ID"
// @Param questionId path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/responses/{questionId} [delete]
func (c *SessionController) ClearResponse(ctx *gin.Context) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := util.ParamID(ctx, "questionId")
	if !ok {
		return
	}
	if err := c.Service.ClearResponse(ctx.Request.Context(), id, questionID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

func (c *SessionController) Submit(ctx *gin.Context) {
	c.lifecycle(ctx, c.Service.Submit)
}

func (c *SessionController) BeginReview(ctx *gin.Context) {
	c.lifecycle(ctx, c.Service.BeginReview)
}

func (c *SessionController) Publish(ctx *gin.Context) {
	c.lifecycle(ctx, c.Service.Publish)
}

func (c *SessionController) Cancel(ctx *gin.Context) {
	c.lifecycle(ctx, c.Service.Cancel)
}

// @Summary 重置答卷
// @Tags 答卷
// @Param id path int true "答卷ID"
// @Param purge query bool false "同时删除回答"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/reset [post]
func (c *SessionController) Reset(ctx *gin.Context) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	purge := ctx.Query("purge") == "true"
	session, err := c.Service.Reset(ctx.Request.Context(), id, purge)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

type sessionAction func(ctx context.Context, sessionID uint) (*model.ResponseSession, error)

func (c *SessionController) lifecycle(ctx *gin.Context, action sessionAction) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	session, err := action(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}
