package app

import (
	"safety_quiz_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	{
		api.GET("/health", c.health.Check)

		// 测验会话
		api.POST("/generate-questions", c.quiz.GenerateQuestions)
		api.POST("/get-question", c.quiz.GetQuestion)
		api.POST("/submit-answer", c.quiz.SubmitAnswer)
		api.POST("/session-status", c.quiz.SessionStatus)
		api.POST("/reset-data", c.quiz.ResetData)

		// 知识文档
		api.POST("/upload-knowledge", c.document.UploadKnowledge)

		// 作答历史
		api.GET("/answer-history", c.history.List)
		api.GET("/answer-history/sessions", c.history.Sessions)

		// 错题本
		api.GET("/wrong-questions", c.wrong.List)
		api.DELETE("/wrong-questions", c.wrong.ClearAll)
		api.GET("/wrong-questions/stats", c.wrong.Stats)
		api.POST("/wrong-questions/practice", c.wrong.Practice)
		api.GET("/wrong-questions/:identifier", c.wrong.Detail)
		api.DELETE("/wrong-questions/:identifier", c.wrong.Remove)

		// AI 配置
		api.GET("/ai-config", c.aiConfig.Get)
		api.PUT("/ai-config", c.aiConfig.Put)
		api.DELETE("/ai-config", c.aiConfig.Delete)
		api.POST("/ai-config/test", c.aiConfig.Test)
	}
}
