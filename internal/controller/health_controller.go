package controller

import (
	"os"
	"path/filepath"

	"safety_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type HealthController struct {
	dataDir string
}

func NewHealthController(dataDir string) *HealthController {
	return &HealthController{dataDir: dataDir}
}

// Check 健康检查
// @Summary 健康检查，确认数据目录可写
// @Tags Health
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) Check(ctx *gin.Context) {
	probe := filepath.Join(c.dataDir, ".health")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		util.Error(ctx, 503, "数据目录不可写")
		return
	}
	os.Remove(probe)
	util.Success(ctx, gin.H{"status": "ok"})
}
