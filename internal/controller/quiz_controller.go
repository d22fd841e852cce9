package controller

import (
	"errors"
	"net/http"

	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/service"
	"safety_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	quizService *service.QuizService
}

func NewQuizController(quizService *service.QuizService) *QuizController {
	return &QuizController{quizService: quizService}
}

type generateQuestionsRequest struct {
	Filepath    string   `json:"filepath"`
	Types       []string `json:"types"`
	Count       int      `json:"count"`
	Mode        string   `json:"mode"`
	Seed        *int64   `json:"seed"`
	UseAI       bool     `json:"use_ai"`
	Temperature float64  `json:"temperature"`
}

// GenerateQuestions 创建测验会话
// @Summary 基于知识文档生成题目并创建会话
// @Tags Quiz
// @Accept json
// @Produce json
// @Param request body generateQuestionsRequest true "生成参数"
// @Success 200 {object} util.Response
// @Router /api/generate-questions [post]
func (c *QuizController) GenerateQuestions(ctx *gin.Context) {
	var req generateQuestionsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "请求体格式错误")
		return
	}
	if req.Filepath == "" {
		util.BadRequest(ctx, "未指定知识文件")
		return
	}
	types, ok := parseQuestionTypes(req.Types)
	if !ok {
		util.BadRequest(ctx, "包含无效的题型参数")
		return
	}

	input := service.CreateSessionInput{
		Filepath:    req.Filepath,
		Types:       types,
		Count:       req.Count,
		Mode:        req.Mode,
		UseAI:       req.UseAI,
		Temperature: req.Temperature,
	}
	if req.Seed != nil {
		input.Seed = *req.Seed
		input.SeedSet = true
	}

	created, err := c.quizService.CreateSession(ctx.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrKnowledgeFileExists):
			util.NotFound(ctx, err.Error())
		case errors.Is(err, util.ErrKnowledgeFileEmpty), errors.Is(err, util.ErrQuestionBankEmpty),
			errors.Is(err, util.ErrFileTooLarge), errors.Is(err, util.ErrUnsupportedFormat):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, created)
}

type sessionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// GetQuestion 获取当前题目
// @Summary 获取会话当前待答题目
// @Tags Quiz
// @Accept json
// @Produce json
// @Param request body sessionRequest true "会话标识"
// @Success 200 {object} util.Response
// @Router /api/get-question [post]
func (c *QuizController) GetQuestion(ctx *gin.Context) {
	var req sessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "缺少 session_id")
		return
	}
	view, err := c.quizService.CurrentQuestion(req.SessionID)
	if err != nil {
		util.NotFound(ctx, err.Error())
		return
	}
	util.Success(ctx, view)
}

type submitAnswerRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Answer    string `json:"answer"`
}

// SubmitAnswer 提交答案
// @Summary 对当前题目判分并推进会话
// @Tags Quiz
// @Accept json
// @Produce json
// @Param request body submitAnswerRequest true "作答内容"
// @Success 200 {object} util.Response
// @Router /api/submit-answer [post]
func (c *QuizController) SubmitAnswer(ctx *gin.Context) {
	var req submitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "缺少 session_id")
		return
	}
	result, err := c.quizService.SubmitAnswer(ctx.Request.Context(), req.SessionID, req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSessionNotFound):
			util.NotFound(ctx, err.Error())
		case errors.Is(err, util.ErrSessionFinished):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, result)
}

// SessionStatus 会话状态
// @Summary 获取会话进度
// @Tags Quiz
// @Accept json
// @Produce json
// @Param request body sessionRequest true "会话标识"
// @Success 200 {object} util.Response
// @Router /api/session-status [post]
func (c *QuizController) SessionStatus(ctx *gin.Context) {
	var req sessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "缺少 session_id")
		return
	}
	status, err := c.quizService.Status(req.SessionID)
	if err != nil {
		util.NotFound(ctx, err.Error())
		return
	}
	util.Success(ctx, status)
}

// ResetData 清空数据
// @Summary 清空会话、历史、错题与上传文档，保留 AI 配置
// @Tags Quiz
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/reset-data [post]
func (c *QuizController) ResetData(ctx *gin.Context) {
	if err := c.quizService.ResetData(ctx.Request.Context()); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, util.Response{
		Code:    http.StatusOK,
		Message: "所有数据已清空（AI配置已保留）",
	})
}

// parseQuestionTypes 解析题型参数列表，空列表表示全部题型
func parseQuestionTypes(raw []string) ([]model.QuestionType, bool) {
	var types []model.QuestionType
	for _, item := range raw {
		t, ok := model.ParseQuestionType(item)
		if !ok {
			return nil, false
		}
		types = append(types, t)
	}
	return types, true
}
