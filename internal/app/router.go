package app

import (
	"survey_marking_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	api.GET("/health", c.health.HealthCheck)

	// 1. 问卷编写
	a.registerAuthoringRoutes(api, c)

	// 2. 答卷生命周期与可见性
	a.registerSessionRoutes(api, c)

	// 3. 评分
	marking := api.Group("/marking")
	{
		marking.POST("/batches", c.marking.MarkBatch)
		marking.GET("/batches/:batchId", c.marking.BatchStatus)
	}
}

func (a *App) registerAuthoringRoutes(api *gin.RouterGroup, c *controllers) {
	assessments := api.Group("/assessments")
	{
		assessments.POST("", c.assessment.CreateAssessment)
		assessments.GET("/:id", c.assessment.GetAssessment)
		assessments.POST("/:id/sections", c.assessment.AddSection)
		assessments.POST("/:id/schemes", c.assessment.CreateScheme)
		assessments.POST("/:id/sessions", c.session.StartSession)
	}

	sections := api.Group("/sections")
	{
		sections.POST("/:id/questions", c.assessment.AddQuestion)
		sections.PUT("/:id/conditions", c.assessment.SetSectionConditions)
	}

	questions := api.Group("/questions")
	{
		questions.POST("/:id/options", c.assessment.AddOption)
		questions.PUT("/:id/conditions", c.assessment.SetQuestionConditions)
	}

	schemes := api.Group("/schemes")
	{
		schemes.POST("/:id/activate", c.assessment.ActivateScheme)
		schemes.DELETE("/:id", c.assessment.DeleteScheme)
		schemes.POST("/:id/rules", c.assessment.AddRule)
	}
}

func (a *App) registerSessionRoutes(api *gin.RouterGroup, c *controllers) {
	sessions := api.Group("/sessions")
	{
		sessions.GET("/:id", c.session.GetSession)
		sessions.PUT("/:id/responses", c.session.SaveResponse)
		sessions.DELETE("/:id/responses/:questionId", c.session.ClearResponse)
		sessions.POST("/:id/submit", c.session.Submit)
		sessions.POST("/:id/review", c.session.BeginReview)
		sessions.POST("/:id/publish", c.session.Publish)
		sessions.POST("/:id/cancel", c.session.Cancel)
		sessions.POST("/:id/reset", c.session.Reset)
		sessions.POST("/:id/mark", c.marking.Mark)

		sessions.GET("/:id/sections", c.visibility.Sections)
		sessions.GET("/:id/sections/:sectionId/next", c.visibility.NextSection)
		sessions.GET("/:id/sections/:sectionId/previous", c.visibility.PreviousSection)
		sessions.GET("/:id/questions", c.visibility.Questions)
		sessions.GET("/:id/questions/:questionId/next", c.visibility.NextQuestion)
		sessions.GET("/:id/questions/:questionId/previous", c.visibility.PreviousQuestion)
		sessions.GET("/:id/question-at/:index", c.visibility.QuestionAt)
		sessions.GET("/:id/completion", c.visibility.Completion)
		sessions.GET("/:id/integrity", c.visibility.Integrity)
	}
}
