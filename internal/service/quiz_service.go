package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"safety_quiz_backend/internal/config"
	"safety_quiz_backend/internal/generator"
	"safety_quiz_backend/internal/grader"
	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/repository"
	"safety_quiz_backend/internal/util"
	"safety_quiz_backend/pkg/logger"
	"safety_quiz_backend/pkg/monitoring"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sessionState 把持久化的会话数据和它的串行化锁绑在一起。
// 同一会话的并发提交按锁排队，先到先判，不会重复判同一道题。
type sessionState struct {
	mu   sync.Mutex
	data *model.QuizSession
}

// QuizService 测验会话的核心编排：出题、取题、判分、落盘。
type QuizService struct {
	Config   *config.Config
	Docs     *DocumentService
	AI       *AIService
	History  *repository.HistoryRepository
	Wrong    *repository.WrongQuestionRepository
	Sessions *repository.SessionRepository

	mu    sync.Mutex
	state map[string]*sessionState
}

func NewQuizService(
	cfg *config.Config,
	docs *DocumentService,
	ai *AIService,
	history *repository.HistoryRepository,
	wrong *repository.WrongQuestionRepository,
	sessions *repository.SessionRepository,
) *QuizService {
	s := &QuizService{
		Config:   cfg,
		Docs:     docs,
		AI:       ai,
		History:  history,
		Wrong:    wrong,
		Sessions: sessions,
		state:    make(map[string]*sessionState),
	}
	for id, data := range sessions.LoadAll() {
		s.state[id] = &sessionState{data: data}
	}
	return s
}

// CreateSessionInput 新建会话参数
type CreateSessionInput struct {
	Filepath    string
	Types       []model.QuestionType
	Count       int
	Mode        string
	Seed        int64
	SeedSet     bool
	UseAI       bool
	Temperature float64
}

// SessionCreated 新建会话结果
type SessionCreated struct {
	SessionID     string   `json:"session_id"`
	TotalCount    int      `json:"total_count"`
	QuestionTypes []string `json:"question_types"`
	AIUsed        bool     `json:"ai_used"`
	Mode          string   `json:"mode,omitempty"`
}

// CreateSession 加载知识文档并创建测验会话。
// 已配置 AI 时优先请求 AI 出题，失败即降级为本地生成，不中断流程。
func (s *QuizService) CreateSession(ctx context.Context, input CreateSessionInput) (*SessionCreated, error) {
	entries, err := s.Docs.LoadEntries(ctx, input.Filepath)
	if err != nil {
		return nil, err
	}

	count := input.Count
	if count <= 0 {
		count = 10
	}
	types := input.Types
	if len(types) == 0 {
		types = model.AllQuestionTypes()
	}
	seed := input.Seed
	if !input.SeedSet {
		seed = time.Now().UnixNano()
	}

	var questions []model.Question
	aiUsed := false
	if input.UseAI {
		if cfg := s.AI.ActiveConfig(); cfg != nil {
			temperature := input.Temperature
			if temperature <= 0 {
				temperature = 0.7
			}
			aiQuestions, err := s.AI.GenerateQuestions(ctx, cfg, entries, count, types, temperature)
			if err != nil {
				logger.Log.Warn("AI 出题失败，降级使用本地生成", zap.Error(err))
			} else if len(aiQuestions) > 0 {
				questions = aiQuestions
				aiUsed = true
				for _, q := range questions {
					monitoring.QuestionsGenerated.WithLabelValues(string(q.QuestionType), "ai").Inc()
				}
			}
		}
	}

	if len(questions) == 0 {
		gen := generator.New(entries, seed, generator.WithNumericUnits(s.numericUnits()))
		questions = gen.BuildByTypes(types)
		for _, q := range questions {
			monitoring.QuestionsGenerated.WithLabelValues(string(q.QuestionType), "local").Inc()
		}
	}
	if len(questions) == 0 {
		return nil, util.ErrQuestionBankEmpty
	}

	if input.Mode == "random" {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	if count < len(questions) {
		questions = questions[:count]
	}

	session := &model.QuizSession{
		Questions:  questions,
		Answers:    []model.SessionAnswer{},
		TotalCount: len(questions),
		Filepath:   input.Filepath,
		Mode:       input.Mode,
	}
	sessionID := s.register(session)

	return &SessionCreated{
		SessionID:     sessionID,
		TotalCount:    len(questions),
		QuestionTypes: distinctTypes(questions),
		AIUsed:        aiUsed,
		Mode:          input.Mode,
	}, nil
}

// CreatePracticeSession 从错题本创建复练会话
func (s *QuizService) CreatePracticeSession(types []model.QuestionType, count int, mode string) (*SessionCreated, error) {
	questions := s.Wrong.Questions()
	if len(questions) == 0 {
		return nil, util.ErrNoWrongQuestions
	}
	if len(types) > 0 {
		wanted := make(map[model.QuestionType]bool, len(types))
		for _, t := range types {
			wanted[t] = true
		}
		filtered := questions[:0]
		for _, q := range questions {
			if wanted[q.QuestionType] {
				filtered = append(filtered, q)
			}
		}
		questions = filtered
	}
	if len(questions) == 0 {
		return nil, util.ErrNoWrongQuestions
	}

	if mode != "sequential" {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		rng.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	if count > 0 && count < len(questions) {
		questions = questions[:count]
	}

	session := &model.QuizSession{
		Questions:  questions,
		Answers:    []model.SessionAnswer{},
		TotalCount: len(questions),
		Mode:       "wrong_question_practice",
	}
	sessionID := s.register(session)

	return &SessionCreated{
		SessionID:     sessionID,
		TotalCount:    len(questions),
		QuestionTypes: distinctTypes(questions),
		Mode:          "wrong_question_practice",
	}, nil
}

// CurrentQuestionView 当前题目视图，Finished 为真时其余字段只有计数有意义
type CurrentQuestionView struct {
	Finished     bool            `json:"finished"`
	Question     *model.Question `json:"question,omitempty"`
	CurrentIndex int             `json:"current_index"`
	TotalCount   int             `json:"total_count"`
	CorrectCount int             `json:"correct_count"`
}

// CurrentQuestion 取会话当前待答的题目
func (s *QuizService) CurrentQuestion(sessionID string) (*CurrentQuestionView, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	session := state.data
	if session.Finished() {
		return &CurrentQuestionView{
			Finished:     true,
			CorrectCount: session.CorrectCount,
			TotalCount:   session.TotalCount,
		}, nil
	}
	question := session.Questions[session.CurrentIndex]
	return &CurrentQuestionView{
		Question:     &question,
		CurrentIndex: session.CurrentIndex + 1,
		TotalCount:   session.TotalCount,
	}, nil
}

// SubmitResult 一次提交的判分结果
type SubmitResult struct {
	IsCorrect     bool   `json:"is_correct"`
	Explanation   string `json:"explanation"`
	CorrectAnswer string `json:"correct_answer"`
	NextAvailable bool   `json:"next_available"`
}

// SubmitAnswer 判分并推进会话。判分结论与历史、错题本在同一把会话锁内落盘，
// 会话快照在锁释放后整体持久化。
func (s *QuizService) SubmitAnswer(ctx context.Context, sessionID, rawAnswer string) (*SubmitResult, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()

	session := state.data
	if session.Finished() {
		state.mu.Unlock()
		return nil, util.ErrSessionFinished
	}
	question := session.Questions[session.CurrentIndex]

	isCorrect, explanation, extra := s.gradeWithOptionalAI(ctx, &question, rawAnswer)
	monitoring.RecordGrade(string(question.QuestionType), isCorrect)

	session.Answers = append(session.Answers, model.SessionAnswer{
		QuestionID:  question.Identifier,
		UserAnswer:  rawAnswer,
		IsCorrect:   isCorrect,
		Explanation: explanation,
	})
	if isCorrect {
		session.CorrectCount++
	}
	session.CurrentIndex++

	record := &model.AnswerRecord{
		Timestamp:        util.NowISO(),
		SessionID:        sessionID,
		Question:         question,
		UserAnswer:       rawAnswer,
		IsCorrect:        isCorrect,
		PlainExplanation: explanation,
		SessionContext: map[string]interface{}{
			"knowledge_file": session.Filepath,
			"mode":           sessionMode(session),
		},
		Extra: extra,
	}
	if err := s.History.Append(record); err != nil {
		logger.Log.Error("写入作答历史失败", zap.Error(err))
	}

	if isCorrect {
		if err := s.Wrong.Remove(question.Identifier); err != nil {
			logger.Log.Error("移除错题失败", zap.Error(err))
		}
	} else {
		if err := s.Wrong.Upsert(&question, explanation); err != nil {
			logger.Log.Error("记录错题失败", zap.Error(err))
		}
	}

	result := &SubmitResult{
		IsCorrect:     isCorrect,
		Explanation:   explanation,
		CorrectAnswer: grader.CorrectAnswerText(&question),
		NextAvailable: !session.Finished(),
	}
	state.mu.Unlock()

	s.persistSessions()
	return result, nil
}

// SessionStatus 会话进度
type SessionStatus struct {
	SessionID    string `json:"session_id"`
	CurrentIndex int    `json:"current_index"`
	TotalCount   int    `json:"total_count"`
	CorrectCount int    `json:"correct_count"`
	Finished     bool   `json:"finished"`
	Mode         string `json:"mode,omitempty"`
}

func (s *QuizService) Status(sessionID string) (*SessionStatus, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	session := state.data
	return &SessionStatus{
		SessionID:    sessionID,
		CurrentIndex: session.CurrentIndex,
		TotalCount:   session.TotalCount,
		CorrectCount: session.CorrectCount,
		Finished:     session.Finished(),
		Mode:         session.Mode,
	}, nil
}

// ResetData 清空会话、历史、错题与已上传的文档，保留 AI 配置
func (s *QuizService) ResetData(ctx context.Context) error {
	s.mu.Lock()
	s.state = make(map[string]*sessionState)
	s.mu.Unlock()

	var errs []error
	if err := s.Sessions.Clear(); err != nil {
		errs = append(errs, err)
	}
	if err := s.History.Clear(); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.Wrong.ClearAll(); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.Docs.Storage.Purge(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// gradeWithOptionalAI 填空/问答题在启用 AI 评分时先请求语义评分，
// 任何失败都静默降级到本地判分。
func (s *QuizService) gradeWithOptionalAI(ctx context.Context, question *model.Question, rawAnswer string) (bool, string, map[string]interface{}) {
	if question.QuestionType == model.Cloze || question.QuestionType == model.QA {
		if cfg := s.AI.ActiveConfig(); cfg != nil && cfg.EnableGrading && question.AnswerText != "" {
			judgement, err := s.AI.EvaluateAnswer(ctx, cfg, question, rawAnswer)
			if err != nil {
				logger.Log.Warn("AI 评分失败，降级到本地判分", zap.Error(err))
			} else {
				return judgement.IsCorrect, formatAIFeedback(judgement), map[string]interface{}{
					"ai_graded":      true,
					"ai_score":       judgement.Score,
					"matched_points": judgement.MatchedPoints,
				}
			}
		}
	}
	outcome := grader.Grade(question, rawAnswer)
	return outcome.IsCorrect, outcome.PlainExplanation, outcome.Extra
}

func formatAIFeedback(j *AIJudgement) string {
	mark := "✗"
	if j.IsCorrect {
		mark = "✓"
	}
	score := strconv.FormatFloat(j.Score, 'f', -1, 64)
	feedback := fmt.Sprintf("%s AI评分：%s分 - %s", mark, score, j.Explanation)
	if j.IsCorrect && len(j.MatchedPoints) > 0 {
		feedback += "\n匹配要点：" + strings.Join(j.MatchedPoints, ", ")
	}
	return feedback
}

// UpdateGeneratorConfig 配置热更新入口
func (s *QuizService) UpdateGeneratorConfig(cfg config.GeneratorConfig) {
	s.mu.Lock()
	s.Config.Generator = cfg
	s.mu.Unlock()
}

func (s *QuizService) numericUnits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Config.Generator.NumericUnits
}

func (s *QuizService) register(session *model.QuizSession) string {
	sessionID := uuid.New().String()
	s.mu.Lock()
	s.state[sessionID] = &sessionState{data: session}
	s.mu.Unlock()
	s.persistSessions()
	return sessionID
}

func (s *QuizService) lookup(sessionID string) (*sessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.state[sessionID]
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	return state, nil
}

// persistSessions 把所有会话整体快照到磁盘。逐个持有会话锁做深拷贝，
// 序列化只读快照，调用方不得持有任何会话锁。
func (s *QuizService) persistSessions() {
	s.mu.Lock()
	states := make(map[string]*sessionState, len(s.state))
	for id, state := range s.state {
		states[id] = state
	}
	s.mu.Unlock()

	snapshot := make(map[string]*model.QuizSession, len(states))
	for id, state := range states {
		state.mu.Lock()
		snapshot[id] = state.data.Clone()
		state.mu.Unlock()
	}
	if err := s.Sessions.SaveAll(snapshot); err != nil {
		logger.Log.Error("持久化会话失败", zap.Error(err))
	}
}

func sessionMode(session *model.QuizSession) string {
	if session.Mode == "wrong_question_practice" {
		return session.Mode
	}
	return "web"
}

func distinctTypes(questions []model.Question) []string {
	seen := make(map[string]bool)
	var types []string
	for _, q := range questions {
		t := string(q.QuestionType)
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types
}
