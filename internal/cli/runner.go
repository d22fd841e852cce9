// Package cli 实现命令行练习模式：加载知识文档、交互答题、落盘记录。
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"safety_quiz_backend/internal/config"
	"safety_quiz_backend/internal/generator"
	"safety_quiz_backend/internal/grader"
	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/repository"
	"safety_quiz_backend/internal/service"
	"safety_quiz_backend/internal/util"

	"github.com/google/uuid"
)

// DefaultKnowledgeFile 未指定 --knowledge-file 时使用的默认文档
const DefaultKnowledgeFile = "docs/Knowledge/电梯安全装置维护程序.md"

// Options 命令行练习参数
type Options struct {
	Mode          string
	Count         int
	Types         []model.QuestionType
	Seed          int64
	SeedSet       bool
	EnableAI      bool
	AIQuestions   int
	AITemperature float64
	KnowledgeFile string
	ReviewWrong   bool
}

// Runner 命令行练习会话
type Runner struct {
	In      io.Reader
	Out     io.Writer
	Config  *config.Config
	History *repository.HistoryRepository
	Wrong   *repository.WrongQuestionRepository
	AI      *service.AIService

	correctAuto int
	totalAuto   int
}

func NewRunner(in io.Reader, out io.Writer, cfg *config.Config, history *repository.HistoryRepository, wrong *repository.WrongQuestionRepository, ai *service.AIService) *Runner {
	return &Runner{
		In:      in,
		Out:     out,
		Config:  cfg,
		History: history,
		Wrong:   wrong,
		AI:      ai,
	}
}

// Run 执行一次完整的练习，返回进程退出码
func (r *Runner) Run(ctx context.Context, opts Options) int {
	if opts.Count < 0 {
		r.println("题目数量必须为正数。")
		return 1
	}
	if opts.AIQuestions < 0 {
		r.println("AI 题目数量不能为负数。")
		return 1
	}

	knowledgeFile := opts.KnowledgeFile
	if knowledgeFile == "" {
		knowledgeFile = DefaultKnowledgeFile
	}
	entries, err := service.LoadEntriesFromFile(knowledgeFile)
	if err != nil {
		r.println(fmt.Sprintf("加载知识文件失败：%v", err))
		return 1
	}

	seed := opts.Seed
	if !opts.SeedSet {
		seed = time.Now().UnixNano()
	}
	types := opts.Types
	if len(types) == 0 {
		types = model.AllQuestionTypes()
	}

	gen := generator.New(entries, seed, generator.WithNumericUnits(r.Config.Generator.NumericUnits))
	questionBank := gen.BuildByTypes(types)

	if opts.ReviewWrong {
		wanted := make(map[model.QuestionType]bool, len(types))
		for _, t := range types {
			wanted[t] = true
		}
		var wrongQuestions []model.Question
		for _, q := range r.Wrong.Questions() {
			if wanted[q.QuestionType] {
				wrongQuestions = append(wrongQuestions, q)
			}
		}
		if len(wrongQuestions) == 0 {
			r.println("暂无错题可复习，先完成一次练习再来试试吧。")
			return 0
		}
		r.println(fmt.Sprintf("进入错题练习模式，共载入 %d 道题。", len(wrongQuestions)))
		questionBank = wrongQuestions
		if opts.EnableAI && opts.AIQuestions > 0 {
			r.println("提示：错题练习模式下忽略 AI 出题参数。")
		}
	} else if opts.EnableAI {
		questionBank = append(questionBank, r.generateAIQuestions(ctx, entries, types, opts)...)
	}

	if len(questionBank) == 0 {
		r.println(util.ErrQuestionBankEmpty.Error())
		return 1
	}

	if opts.Mode == "random" {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(questionBank), func(i, j int) {
			questionBank[i], questionBank[j] = questionBank[j], questionBank[i]
		})
	}
	if opts.Count > 0 && opts.Count < len(questionBank) {
		questionBank = questionBank[:opts.Count]
	}

	sessionID := uuid.New().String()
	sessionContext := map[string]interface{}{
		"mode":           opts.Mode,
		"review_wrong":   opts.ReviewWrong,
		"knowledge_file": knowledgeFile,
	}

	total := len(questionBank)
	r.println(fmt.Sprintf("本次题目数量：%d\n", total))
	scanner := bufio.NewScanner(r.In)
	for idx, question := range questionBank {
		r.println(fmt.Sprintf("—— 第%d题/%d ——", idx+1, total))
		r.ask(scanner, &question, sessionID, sessionContext)
		r.println("")
	}

	if r.totalAuto > 0 {
		score := 100 * float64(r.correctAuto) / float64(r.totalAuto)
		r.println(fmt.Sprintf("自动判分题得分：%.1f（%d/%d）", score, r.correctAuto, r.totalAuto))
	} else {
		r.println("无自动判分题目。")
	}
	return 0
}

func (r *Runner) generateAIQuestions(ctx context.Context, entries []model.KnowledgeEntry, types []model.QuestionType, opts Options) []model.Question {
	cfg := r.AI.ActiveConfig()
	if cfg == nil {
		r.println("未找到AI配置文件，跳过AI加载。\n")
		return nil
	}
	r.println(fmt.Sprintf("已加载AI配置：model=%s url=%s", cfg.Model, cfg.URL))
	if opts.AIQuestions <= 0 {
		return nil
	}
	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}
	sort.Strings(typeNames)
	r.println(fmt.Sprintf("尝试生成 %d 道 AI 题目（type: %s）。", opts.AIQuestions, strings.Join(typeNames, ", ")))

	temperature := opts.AITemperature
	if temperature <= 0 {
		temperature = 0.7
	}
	aiQuestions, err := r.AI.GenerateQuestions(ctx, cfg, entries, opts.AIQuestions, types, temperature)
	if err != nil {
		r.println(fmt.Sprintf("⚠️ AI 出题失败：%v", err))
		return nil
	}
	if len(aiQuestions) == 0 {
		r.println("⚠️ AI 未返回有效题目。\n")
		return nil
	}
	r.println(fmt.Sprintf("AI 生成题目 %d 道，将并入题库。\n", len(aiQuestions)))
	return aiQuestions
}

func (r *Runner) ask(scanner *bufio.Scanner, question *model.Question, sessionID string, sessionContext map[string]interface{}) {
	r.println(question.Prompt)
	for idx, option := range question.Options {
		r.println(fmt.Sprintf("  %s. %s", grader.OptionLabel(idx), strings.TrimSpace(option)))
	}

	fmt.Fprint(r.Out, "你的答案：")
	userAnswer := ""
	if scanner.Scan() {
		userAnswer = strings.TrimSpace(scanner.Text())
	}

	outcome := grader.Grade(question, userAnswer)
	switch question.QuestionType {
	case model.SingleChoice:
		r.totalAuto++
		if outcome.IsCorrect {
			r.correctAuto++
		}
		r.printSingleFeedback(question, userAnswer, outcome.IsCorrect)
	case model.MultiChoice:
		r.totalAuto++
		if outcome.IsCorrect {
			r.correctAuto++
		}
		r.printMultiFeedback(question, userAnswer, outcome)
	case model.Cloze:
		r.totalAuto++
		if outcome.IsCorrect {
			r.correctAuto++
		}
		r.printClozeFeedback(question, outcome.IsCorrect)
	case model.QA:
		r.printQAFeedback(question, userAnswer, outcome)
	default:
		r.println("暂不支持的题型。")
	}
	r.println("解析： " + outcome.PlainExplanation)

	record := &model.AnswerRecord{
		Timestamp:        util.NowISO(),
		SessionID:        sessionID,
		Question:         *question,
		UserAnswer:       userAnswer,
		IsCorrect:        outcome.IsCorrect,
		PlainExplanation: outcome.PlainExplanation,
		SessionContext:   sessionContext,
		Extra:            outcome.Extra,
	}
	if err := r.History.Append(record); err != nil {
		r.println(fmt.Sprintf("⚠️ 记录作答历史失败：%v", err))
	}
	if outcome.IsCorrect {
		r.Wrong.Remove(question.Identifier)
	} else {
		r.Wrong.Upsert(question, outcome.PlainExplanation)
	}
}

func (r *Runner) printSingleFeedback(question *model.Question, userAnswer string, isCorrect bool) {
	correctLabel := "—"
	if len(question.CorrectOptions) > 0 {
		correctLabel = grader.OptionLabel(question.CorrectOptions[0])
	}
	if userAnswer == "" {
		r.println("未作答。正确答案： " + correctLabel)
	} else if _, ok := grader.LetterToIndex(userAnswer); !ok {
		r.println("答案格式不正确。正确答案： " + correctLabel)
	} else if isCorrect {
		r.println("✅ 回答正确！")
	} else {
		r.println("❌ 回答不正确。正确答案： " + correctLabel)
	}
	r.println("要点： " + question.AnswerText)
}

func (r *Runner) printMultiFeedback(question *model.Question, userAnswer string, outcome model.GradeOutcome) {
	correctLabels := grader.FormatIndices(question.CorrectOptions)
	if userAnswer == "" {
		r.println("未作答。正确答案： " + correctLabels)
	} else {
		parsed, ok := grader.ParseMultiAnswer(userAnswer, len(question.Options))
		if !ok {
			r.println("答案格式不正确。正确答案： " + correctLabels)
		} else if outcome.IsCorrect {
			r.println("✅ 回答正确！")
		} else {
			extraneous, missing := grader.WrongChoiceFeedback(question, parsed)
			r.println("❌ 回答不完全正确。")
			if len(extraneous) > 0 {
				r.println("误选： " + strings.Join(extraneous, "；"))
			}
			if len(missing) > 0 {
				r.println("漏选： " + strings.Join(missing, "；"))
			}
			r.println("正确选项： " + correctLabels)
		}
	}
	r.println("要点： " + question.AnswerText)
}

func (r *Runner) printClozeFeedback(question *model.Question, isCorrect bool) {
	if isCorrect {
		r.println("✅ 回答正确！")
	} else {
		r.println("❌ 回答不正确。")
		r.println("正确答案： " + question.AnswerText)
	}
	r.println("参考原句： " + question.Explanation)
}

func (r *Runner) printQAFeedback(question *model.Question, userAnswer string, outcome model.GradeOutcome) {
	if userAnswer == "" {
		if len(question.Keywords) > 0 {
			hint := question.Keywords
			if len(hint) > 6 {
				hint = hint[:6]
			}
			r.println("未作答。建议包含以下关键词： " + strings.Join(hint, "、"))
		} else {
			r.println("未作答。请结合参考答案复习要点。")
		}
	} else {
		matched, _ := outcome.Extra["matched_keywords"].([]string)
		ratio, _ := outcome.Extra["coverage_ratio"].(float64)
		if len(matched) > 0 {
			r.println(fmt.Sprintf("匹配到关键词（%d）： %s", len(matched), strings.Join(matched, "、")))
		} else {
			r.println("未匹配到关键词，请对照参考答案自查。")
		}
		r.println(fmt.Sprintf("关键词覆盖率约为：%d%%", int(math.Round(ratio*100))))
	}
	r.println("参考答案： " + question.AnswerText)
}

func (r *Runner) println(line string) {
	fmt.Fprintln(r.Out, line)
}
