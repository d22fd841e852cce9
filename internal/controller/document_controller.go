package controller

import (
	"errors"

	"safety_quiz_backend/internal/service"
	"safety_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type DocumentController struct {
	documentService *service.DocumentService
}

func NewDocumentController(documentService *service.DocumentService) *DocumentController {
	return &DocumentController{documentService: documentService}
}

// UploadKnowledge 上传知识文档
// @Summary 上传知识文档并返回切分预览
// @Tags Document
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "知识文档（.txt/.md/.pdf）"
// @Success 200 {object} util.Response
// @Router /api/upload-knowledge [post]
func (c *DocumentController) UploadKnowledge(ctx *gin.Context) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "缺少上传文件")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	result, err := c.documentService.UploadKnowledge(ctx.Request.Context(), fileHeader.Filename, file, fileHeader.Size)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrFileTooLarge),
			errors.Is(err, util.ErrUnsupportedFormat),
			errors.Is(err, util.ErrKnowledgeFileEmpty):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, result)
}
