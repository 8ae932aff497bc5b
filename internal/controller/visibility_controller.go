package controller

import (
	"strconv"

	"survey_marking_backend/internal/service"
	"survey_marking_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// VisibilityController exposes what a session currently sees. Every call
// recomputes from stored answers.
type VisibilityController struct {
	Service *service.VisibilityService
}

func NewVisibilityController(svc *service.VisibilityService) *VisibilityController {
	return &VisibilityController{Service: svc}
}

// @Summary 可见分节
// @Tags 可见性
// @Param id path int true "答卷ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/sections [get]
func (c *VisibilityController) Sections(ctx *gin.Context) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	sections, err := c.Service.VisibleSections(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sections)
}

// @Summary 可见题目
// @Tags 可见性
// @Param id path int true "答卷ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/questions [get]
func (c *VisibilityController) Questions(ctx *gin.Context) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	questions, err := c.Service.VisibleQuestions(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, questions)
}

// @Summary 完成度统计
// @Tags 可见性
// @Param id path int true "答卷ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/completion [get]
func (c *VisibilityController) Completion(ctx *gin.Context) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	stats, err := c.Service.CompletionStats(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

func (c *VisibilityController) Integrity(ctx *gin.Context) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	warnings, err := c.Service.IntegrityWarnings(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, warnings)
}

// @Summary 按序号获取可见题目
// @Tags 可见性
// @Param id path int true "答卷ID"
// @Param index path int true "从0开始的序号"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/question-at/{index} [get]
func (c *VisibilityController) QuestionAt(ctx *gin.Context) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil {
		util.BadRequest(ctx, "invalid index")
		return
	}
	q, err := c.Service.VisibleQuestionAt(ctx.Request.Context(), id, index)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if q == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, q)
}

func (c *VisibilityController) NextQuestion(ctx *gin.Context) {
	c.navigate(ctx, "questionId", func(g *gin.Context, sessionID, currentID uint) (interface{}, bool, error) {
		q, err := c.Service.NextVisibleQuestion(g.Request.Context(), sessionID, currentID)
		return q, q != nil, err
	})
}

func (c *VisibilityController) PreviousQuestion(ctx *gin.Context) {
	c.navigate(ctx, "questionId", func(g *gin.Context, sessionID, currentID uint) (interface{}, bool, error) {
		q, err := c.Service.PreviousVisibleQuestion(g.Request.Context(), sessionID, currentID)
		return q, q != nil, err
	})
}

func (c *VisibilityController) NextSection(ctx *gin.Context) {
	c.navigate(ctx, "sectionId", func(g *gin.Context, sessionID, currentID uint) (interface{}, bool, error) {
		s, err := c.Service.NextVisibleSection(g.Request.Context(), sessionID, currentID)
		return s, s != nil, err
	})
}

func (c *VisibilityController) PreviousSection(ctx *gin.Context) {
	c.navigate(ctx, "sectionId", func(g *gin.Context, sessionID, currentID uint) (interface{}, bool, error) {
		s, err := c.Service.PreviousVisibleSection(g.Request.Context(), sessionID, currentID)
		return s, s != nil, err
	})
}

// navigate answers data:null when there is no neighbour.
func (c *VisibilityController) navigate(ctx *gin.Context, param string, step func(*gin.Context, uint, uint) (interface{}, bool, error)) {
	id, ok := util.ParamID(ctx, "id")
	if !ok {
		return
	}
	currentID, ok := util.ParamID(ctx, param)
	if !ok {
		return
	}
	item, found, err := step(ctx, id, currentID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if !found {
		util.Success(ctx, nil)
		return
	}
	util.Success(ctx, item)
}
