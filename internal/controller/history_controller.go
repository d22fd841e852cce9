package controller

import (
	"strconv"

	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/repository"
	"safety_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type HistoryController struct {
	historyRepo *repository.HistoryRepository
}

func NewHistoryController(historyRepo *repository.HistoryRepository) *HistoryController {
	return &HistoryController{historyRepo: historyRepo}
}

// List 作答历史分页查询
// @Summary 分页查询作答历史
// @Tags History
// @Produce json
// @Param page query int false "页码，默认1"
// @Param page_size query int false "每页条数，1~200"
// @Param session_id query string false "会话过滤"
// @Param question_type query string false "题型过滤"
// @Param is_correct query bool false "正误过滤"
// @Param date_from query string false "起始时间（ISO 8601）"
// @Param date_to query string false "结束时间（ISO 8601）"
// @Success 200 {object} util.Response
// @Router /api/answer-history [get]
func (c *HistoryController) List(ctx *gin.Context) {
	query := repository.HistoryQuery{
		SessionID: ctx.Query("session_id"),
	}

	if page, err := strconv.Atoi(ctx.DefaultQuery("page", "1")); err == nil && page > 0 {
		query.Page = page
	} else {
		query.Page = 1
	}
	pageSize, err := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	query.PageSize = pageSize

	if raw := ctx.Query("question_type"); raw != "" {
		questionType, ok := model.ParseQuestionType(raw)
		if !ok {
			util.BadRequest(ctx, "无效的题型: "+raw)
			return
		}
		query.QuestionType = questionType
	}

	if raw := ctx.Query("is_correct"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			util.BadRequest(ctx, "is_correct 参数必须为 true/false")
			return
		}
		query.IsCorrect = &value
	}

	if raw := ctx.Query("date_from"); raw != "" {
		ts, err := util.ParseISO(raw)
		if err != nil {
			util.BadRequest(ctx, "date_from 不是有效的 ISO 8601 时间")
			return
		}
		query.DateFrom = &ts
	}
	if raw := ctx.Query("date_to"); raw != "" {
		ts, err := util.ParseISO(raw)
		if err != nil {
			util.BadRequest(ctx, "date_to 不是有效的 ISO 8601 时间")
			return
		}
		query.DateTo = &ts
	}

	records, pagination, err := c.historyRepo.Query(query)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: records, Pagination: pagination})
}

// Sessions 会话级作答摘要
// @Summary 按会话聚合的作答摘要
// @Tags History
// @Produce json
// @Param limit query int false "返回条数上限，1~100，默认20"
// @Success 200 {object} util.Response
// @Router /api/answer-history/sessions [get]
func (c *HistoryController) Sessions(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	summaries, err := c.historyRepo.SessionSummaries(limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if summaries == nil {
		summaries = []model.SessionSummary{}
	}
	util.Success(ctx, summaries)
}
