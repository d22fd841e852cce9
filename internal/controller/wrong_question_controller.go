package controller

import (
	"errors"
	"strconv"

	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/repository"
	"safety_quiz_backend/internal/service"
	"safety_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type WrongQuestionController struct {
	wrongRepo   *repository.WrongQuestionRepository
	quizService *service.QuizService
}

func NewWrongQuestionController(wrongRepo *repository.WrongQuestionRepository, quizService *service.QuizService) *WrongQuestionController {
	return &WrongQuestionController{wrongRepo: wrongRepo, quizService: quizService}
}

// List 错题列表
// @Summary 分页查询错题本
// @Tags WrongQuestion
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页条数"
// @Param question_type query string false "题型过滤"
// @Param sort_by query string false "排序字段：last_wrong_at/identifier"
// @Param order query string false "asc/desc，默认desc"
// @Success 200 {object} util.Response
// @Router /api/wrong-questions [get]
func (c *WrongQuestionController) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))

	var questionType model.QuestionType
	if raw := ctx.Query("question_type"); raw != "" {
		parsed, ok := model.ParseQuestionType(raw)
		if !ok {
			util.BadRequest(ctx, "无效的题型: "+raw)
			return
		}
		questionType = parsed
	}

	records, pagination := c.wrongRepo.Paginated(page, pageSize, questionType, ctx.Query("sort_by"), ctx.Query("order"))
	util.Success(ctx, util.PageResponse{List: records, Pagination: pagination})
}

// Stats 错题统计
// @Summary 错题总数、题型分布与薄弱部件
// @Tags WrongQuestion
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/wrong-questions/stats [get]
func (c *WrongQuestionController) Stats(ctx *gin.Context) {
	util.Success(ctx, c.wrongRepo.Stats())
}

type practiceRequest struct {
	QuestionTypes []string `json:"question_types"`
	Count         int      `json:"count"`
	Mode          string   `json:"mode"`
}

// Practice 创建错题复练会话
// @Summary 从错题本创建复练会话
// @Tags WrongQuestion
// @Accept json
// @Produce json
// @Param request body practiceRequest false "复练参数"
// @Success 200 {object} util.Response
// @Router /api/wrong-questions/practice [post]
func (c *WrongQuestionController) Practice(ctx *gin.Context) {
	var req practiceRequest
	ctx.ShouldBindJSON(&req)

	types, ok := parseQuestionTypes(req.QuestionTypes)
	if !ok {
		util.BadRequest(ctx, "包含无效的题型参数")
		return
	}
	created, err := c.quizService.CreatePracticeSession(types, req.Count, req.Mode)
	if err != nil {
		if errors.Is(err, util.ErrNoWrongQuestions) {
			util.BadRequest(ctx, err.Error())
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, created)
}

// Detail 单条错题详情
// @Summary 按标识符查询错题
// @Tags WrongQuestion
// @Produce json
// @Param identifier path string true "题目标识符"
// @Success 200 {object} util.Response
// @Router /api/wrong-questions/{identifier} [get]
func (c *WrongQuestionController) Detail(ctx *gin.Context) {
	record, ok := c.wrongRepo.Detail(ctx.Param("identifier"))
	if !ok {
		util.NotFound(ctx, "题目不存在")
		return
	}
	util.Success(ctx, record)
}

// Remove 删除单条错题
// @Summary 按标识符删除错题
// @Tags WrongQuestion
// @Produce json
// @Param identifier path string true "题目标识符"
// @Success 200 {object} util.Response
// @Router /api/wrong-questions/{identifier} [delete]
func (c *WrongQuestionController) Remove(ctx *gin.Context) {
	identifier := ctx.Param("identifier")
	if _, ok := c.wrongRepo.Detail(identifier); !ok {
		util.NotFound(ctx, "题目不存在")
		return
	}
	if err := c.wrongRepo.Remove(identifier); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"identifier": identifier})
}

// ClearAll 清空错题本
// @Summary 清空全部错题
// @Tags WrongQuestion
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/wrong-questions [delete]
func (c *WrongQuestionController) ClearAll(ctx *gin.Context) {
	count, err := c.wrongRepo.ClearAll()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"removed": count})
}
