package controller

import (
	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/repository"
	"safety_quiz_backend/internal/service"
	"safety_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AIConfigController struct {
	aiService    *service.AIService
	aiConfigRepo *repository.AIConfigRepository
}

func NewAIConfigController(aiService *service.AIService, aiConfigRepo *repository.AIConfigRepository) *AIConfigController {
	return &AIConfigController{aiService: aiService, aiConfigRepo: aiConfigRepo}
}

// maskedConfig 返回给前端的配置视图，密钥只保留尾部4位
func maskedConfig(cfg *model.AIEndpointConfig) gin.H {
	key := cfg.Key
	if len(key) > 4 {
		key = "****" + key[len(key)-4:]
	}
	return gin.H{
		"url":               cfg.URL,
		"key":               key,
		"model":             cfg.Model,
		"timeout":           cfg.TimeoutSeconds,
		"dev_document":      cfg.DevDocument,
		"enable_ai_grading": cfg.EnableGrading,
	}
}

// Get 当前生效的 AI 配置
// @Summary 查询当前生效的 AI 接入配置（密钥脱敏）
// @Tags AIConfig
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/ai-config [get]
func (c *AIConfigController) Get(ctx *gin.Context) {
	cfg := c.aiService.ActiveConfig()
	if cfg == nil {
		util.Success(ctx, gin.H{"configured": false})
		return
	}
	util.Success(ctx, gin.H{"configured": true, "config": maskedConfig(cfg)})
}

type aiConfigRequest struct {
	URL            string  `json:"url" binding:"required"`
	Key            string  `json:"key" binding:"required"`
	Model          string  `json:"model" binding:"required"`
	TimeoutSeconds float64 `json:"timeout"`
	DevDocument    string  `json:"dev_document"`
	EnableGrading  bool    `json:"enable_ai_grading"`
}

// Put 保存 AI 配置
// @Summary 保存运行时 AI 接入配置
// @Tags AIConfig
// @Accept json
// @Produce json
// @Param request body aiConfigRequest true "接入参数"
// @Success 200 {object} util.Response
// @Router /api/ai-config [put]
func (c *AIConfigController) Put(ctx *gin.Context) {
	var req aiConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "url、key、model 为必填字段")
		return
	}
	cfg := &model.AIEndpointConfig{
		URL:            req.URL,
		Key:            req.Key,
		Model:          req.Model,
		TimeoutSeconds: req.TimeoutSeconds,
		DevDocument:    req.DevDocument,
		EnableGrading:  req.EnableGrading,
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 45
	}
	if err := c.aiConfigRepo.Save(cfg); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, maskedConfig(cfg))
}

// Delete 删除运行时 AI 配置
// @Summary 删除已保存的 AI 配置，回落到配置文件默认值
// @Tags AIConfig
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/ai-config [delete]
func (c *AIConfigController) Delete(ctx *gin.Context) {
	removed, err := c.aiConfigRepo.Delete()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if !removed {
		util.NotFound(ctx, util.ErrAIConfigMissing.Error())
		return
	}
	util.Success(ctx, gin.H{"removed": true})
}

// Test 连通性测试
// @Summary 对当前生效的 AI 配置做一次连通性测试
// @Tags AIConfig
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/ai-config/test [post]
func (c *AIConfigController) Test(ctx *gin.Context) {
	cfg := c.aiService.ActiveConfig()
	if cfg == nil {
		util.BadRequest(ctx, "尚未配置 AI 接入参数")
		return
	}
	ok, message := c.aiService.TestConnectivity(ctx.Request.Context(), cfg)
	util.Success(ctx, gin.H{"ok": ok, "message": message})
}
