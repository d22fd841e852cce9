package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"safety_quiz_backend/internal/config"
	"safety_quiz_backend/internal/generator"
	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/repository"
	"safety_quiz_backend/pkg/logger"
	"safety_quiz_backend/pkg/monitoring"

	"go.uber.org/zap"
)

var (
	// ErrAITransport HTTP 层失败（连不上、非 2xx）
	ErrAITransport = errors.New("AI 接口请求失败")
	// ErrAIResponseFormat 响应无法解析为题目
	ErrAIResponseFormat = errors.New("AI 响应格式错误")
)

// AIJudgement AI 语义评分结果
type AIJudgement struct {
	IsCorrect     bool     `json:"is_correct"`
	Score         float64  `json:"score"`
	Explanation   string   `json:"explanation"`
	MatchedPoints []string `json:"matched_points,omitempty"`
}

// AIService 外部大模型接入：补充出题与主观题语义评分。
// 接入参数优先取 data 目录下保存的运行时配置，缺省时回落到配置文件。
type AIService struct {
	Defaults  config.AIConfig
	Repo      *repository.AIConfigRepository
	extractor *generator.KeywordExtractor

	mu sync.RWMutex
}

func NewAIService(defaults config.AIConfig, repo *repository.AIConfigRepository) *AIService {
	return &AIService{
		Defaults:  defaults,
		Repo:      repo,
		extractor: generator.NewKeywordExtractor(nil),
	}
}

// UpdateDefaults 配置热更新入口，只替换配置文件层的默认值
func (s *AIService) UpdateDefaults(defaults config.AIConfig) {
	s.mu.Lock()
	s.Defaults = defaults
	s.mu.Unlock()
}

// ActiveConfig 运行时配置优先，其次配置文件默认值；两者都不完整时返回 nil
func (s *AIService) ActiveConfig() *model.AIEndpointConfig {
	if saved, err := s.Repo.Load(); err == nil && saved.Complete() {
		return saved
	} else if err != nil {
		logger.Log.Warn("读取运行时 AI 配置失败", zap.Error(err))
	}
	s.mu.RLock()
	defaults := s.Defaults
	s.mu.RUnlock()
	fallback := &model.AIEndpointConfig{
		URL:            defaults.BaseURL,
		Key:            defaults.APIKey,
		Model:          defaults.Model,
		TimeoutSeconds: defaults.TimeoutSeconds,
		EnableGrading:  defaults.EnableGrading,
	}
	if fallback.Complete() {
		return fallback
	}
	return nil
}

// GenerateQuestions 请求外部模型出题。只做一次请求，失败由调用方决定是否回落本地生成。
func (s *AIService) GenerateQuestions(ctx context.Context, cfg *model.AIEndpointConfig, entries []model.KnowledgeEntry, count int, types []model.QuestionType, temperature float64) ([]model.Question, error) {
	if count <= 0 {
		return nil, nil
	}
	typeLabels := questionTypeLabels(types)

	payload := map[string]interface{}{
		"model": cfg.Model,
		"messages": []map[string]string{
			{
				"role":    "system",
				"content": "你是一名安全培训出题专家。只使用提供的知识点内容，生成题目。结果必须是 JSON 字符串。",
			},
			{"role": "user", "content": buildGenerationPrompt(entries, count, typeLabels)},
		},
		"temperature": temperature,
	}

	done := monitoring.TimeAICall("generate")
	response, err := s.postJSON(ctx, cfg, payload)
	if err != nil {
		done("transport_error")
		return nil, err
	}

	message, err := extractMessageText(response)
	if err != nil {
		done("format_error")
		return nil, err
	}
	rawQuestions, err := parseRawQuestions(message)
	if err != nil {
		done("format_error")
		return nil, err
	}

	wanted := make(map[model.QuestionType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	var built []model.Question
	for idx, raw := range rawQuestions {
		q := s.buildQuestion(raw, idx+1)
		if q == nil {
			continue
		}
		if len(wanted) > 0 && !wanted[q.QuestionType] {
			continue
		}
		built = append(built, *q)
		if len(built) >= count {
			break
		}
	}
	done("ok")
	return built, nil
}

// EvaluateAnswer 请求外部模型对填空/问答题做语义评分
func (s *AIService) EvaluateAnswer(ctx context.Context, cfg *model.AIEndpointConfig, question *model.Question, userAnswer string) (*AIJudgement, error) {
	if question.AnswerText == "" {
		return nil, fmt.Errorf("%w: 题目缺少标准答案", ErrAIResponseFormat)
	}

	prompt := fmt.Sprintf(
		"请评判学员答案是否达意。\n题目：%s\n标准答案：%s\n学员答案：%s\n\n"+
			"输出 JSON 对象，字段：\n"+
			"- is_correct: 布尔值，语义上是否达到标准答案要点\n"+
			"- score: 0 到 100 的整数分\n"+
			"- explanation: 简短中文点评\n"+
			"- matched_points: 命中的要点数组\n"+
			"务必严格输出合法 JSON，不要包含额外说明。",
		question.Prompt, question.AnswerText, userAnswer)

	payload := map[string]interface{}{
		"model": cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": "你是一名安全培训阅卷专家。结果必须是 JSON 字符串。"},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.0,
	}

	done := monitoring.TimeAICall("evaluate")
	response, err := s.postJSON(ctx, cfg, payload)
	if err != nil {
		done("transport_error")
		return nil, err
	}
	message, err := extractMessageText(response)
	if err != nil {
		done("format_error")
		return nil, err
	}

	block := message
	var judgement AIJudgement
	if err := json.Unmarshal([]byte(strings.TrimSpace(block)), &judgement); err != nil {
		candidate := extractJSONBlock(message)
		if candidate == "" {
			done("format_error")
			return nil, fmt.Errorf("%w: 评分响应不含 JSON", ErrAIResponseFormat)
		}
		if err := json.Unmarshal([]byte(candidate), &judgement); err != nil {
			done("format_error")
			return nil, fmt.Errorf("%w: %v", ErrAIResponseFormat, err)
		}
	}
	done("ok")
	return &judgement, nil
}

// TestConnectivity 对接入地址发一次带鉴权的 GET，返回可读的结果描述
func (s *AIService) TestConnectivity(ctx context.Context, cfg *model.AIEndpointConfig) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sanitizeURL(cfg.URL), nil)
	if err != nil {
		return false, fmt.Sprintf("无效的接口地址：%v", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Key)

	client := &http.Client{Timeout: timeoutFor(cfg)}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("无法连接：%v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return true, fmt.Sprintf("连通性测试成功，HTTP 状态 %d。", resp.StatusCode)
}

func (s *AIService) postJSON(ctx context.Context, cfg *model.AIEndpointConfig, payload interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sanitizeURL(cfg.URL), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAITransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.Key)

	client := &http.Client{Timeout: timeoutFor(cfg)}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAITransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAITransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(raw))
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrAITransport, resp.StatusCode, detail)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: 返回的不是合法 JSON", ErrAIResponseFormat)
	}
	return parsed, nil
}

func buildGenerationPrompt(entries []model.KnowledgeEntry, count int, typeLabels []string) string {
	var summary strings.Builder
	for i, entry := range entries {
		if i > 0 {
			summary.WriteByte('\n')
		}
		fmt.Fprintf(&summary, "- %s：%s", entry.Component, entry.RawText)
	}
	return fmt.Sprintf(
		"以下是电梯安全维护的知识点：\n%s\n\n"+
			"请基于这些知识点生成 %d 道题。题型限定为：%s。\n"+
			"输出 JSON 数组，每个元素包含字段：\n"+
			"- id: 字符串，题目唯一标识（如果无可填临时 ID）\n"+
			"- component: 题目涉及的部件名称\n"+
			"- type: 题型（single/multi/cloze/qa）\n"+
			"- prompt: 题干\n"+
			"- options: 单选/多选题的选项数组，其他题型可省略\n"+
			"- answer: 单选题用整数索引，多选题用整数索引数组，填空/问答题用字符串\n"+
			"- explanation: 参考答案解析或出处\n"+
			"- keywords: 可选，问答题可提供关键词数组\n"+
			"务必严格输出合法 JSON，不要包含额外说明。",
		summary.String(), count, strings.Join(typeLabels, ", "))
}

func questionTypeLabels(types []model.QuestionType) []string {
	set := make(map[string]bool)
	for _, t := range types {
		switch t {
		case model.SingleChoice:
			set["single"] = true
		case model.MultiChoice:
			set["multi"] = true
		case model.Cloze:
			set["cloze"] = true
		case model.QA:
			set["qa"] = true
		}
	}
	if len(set) == 0 {
		return []string{"single", "multi", "cloze", "qa"}
	}
	labels := make([]string, 0, len(set))
	for label := range set {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// extractMessageText 兼容多家厂商的响应包络：
// choices[].message.content（字符串或分段数组）、choices[].text、
// 以及顶层 result/content/data 字段。
func extractMessageText(response map[string]interface{}) (string, error) {
	if choices, ok := response["choices"].([]interface{}); ok {
		for _, item := range choices {
			choice, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if message, ok := choice["message"].(map[string]interface{}); ok {
				switch content := message["content"].(type) {
				case string:
					return content, nil
				case []interface{}:
					var parts strings.Builder
					for _, part := range content {
						if m, ok := part.(map[string]interface{}); ok {
							if text, ok := m["text"].(string); ok {
								parts.WriteString(text)
							}
						}
					}
					if merged := strings.TrimSpace(parts.String()); merged != "" {
						return merged, nil
					}
				}
			}
			if text, ok := choice["text"].(string); ok && strings.TrimSpace(text) != "" {
				return text, nil
			}
		}
	}
	for _, key := range []string{"result", "content", "data"} {
		if value, ok := response[key].(string); ok && strings.TrimSpace(value) != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: 无法在响应中找到文本内容", ErrAIResponseFormat)
}

func parseRawQuestions(message string) ([]map[string]interface{}, error) {
	message = strings.TrimSpace(message)
	var data interface{}
	if err := json.Unmarshal([]byte(message), &data); err != nil {
		candidate := extractJSONBlock(message)
		if candidate == "" {
			return nil, fmt.Errorf("%w: 返回内容中不包含 JSON 数据", ErrAIResponseFormat)
		}
		if err := json.Unmarshal([]byte(candidate), &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAIResponseFormat, err)
		}
	}
	if wrapper, ok := data.(map[string]interface{}); ok {
		if inner, exists := wrapper["questions"]; exists {
			data = inner
		}
	}
	list, ok := data.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: 返回的 JSON 不是题目数组", ErrAIResponseFormat)
	}
	var normalized []map[string]interface{}
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			normalized = append(normalized, m)
		}
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: 返回的题目数组为空", ErrAIResponseFormat)
	}
	return normalized, nil
}

// extractJSONBlock 在自由文本中定位最外层的 JSON 数组或对象
func extractJSONBlock(text string) string {
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start != -1 && end > start {
		return text[start : end+1]
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start != -1 && end > start {
		return text[start : end+1]
	}
	return ""
}

// buildQuestion 将模型返回的松散 JSON 规整为题目；不合规条目返回 nil 跳过
func (s *AIService) buildQuestion(raw map[string]interface{}, fallbackIndex int) *model.Question {
	questionType, ok := model.ParseQuestionType(stringField(raw, "type"))
	if !ok {
		return nil
	}
	prompt := strings.TrimSpace(stringField(raw, "prompt"))
	if prompt == "" {
		return nil
	}
	component := strings.TrimSpace(stringField(raw, "component"))
	if component == "" {
		component = "AI"
	}
	identifier := strings.TrimSpace(stringField(raw, "id"))
	if identifier == "" {
		identifier = fmt.Sprintf("AI-%s-%d", component, fallbackIndex)
	}
	explanation := strings.TrimSpace(stringField(raw, "explanation"))

	if questionType.IsChoice() {
		options := normalizeOptions(raw["options"])
		if len(options) == 0 {
			return nil
		}
		correct := normalizeOptionAnswers(raw["answer"], questionType, len(options))
		if correct == nil {
			return nil
		}
		answerParts := make([]string, 0, len(correct))
		for _, idx := range correct {
			answerParts = append(answerParts, options[idx])
		}
		return &model.Question{
			Identifier:     identifier,
			QuestionType:   questionType,
			Prompt:         prompt,
			Options:        options,
			CorrectOptions: correct,
			AnswerText:     strings.Join(answerParts, "；"),
			Explanation:    explanation,
		}
	}

	answerText := normalizeTextAnswer(raw["answer"])
	if questionType == model.Cloze && answerText == "" {
		return nil
	}
	return &model.Question{
		Identifier:   identifier,
		QuestionType: questionType,
		Prompt:       prompt,
		AnswerText:   answerText,
		Explanation:  explanation,
		Keywords:     s.normalizeKeywords(raw["keywords"], answerText),
	}
}

func stringField(raw map[string]interface{}, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func normalizeOptions(value interface{}) []string {
	list, ok := value.([]interface{})
	if !ok {
		return nil
	}
	var options []string
	for _, item := range list {
		text := strings.TrimSpace(fmt.Sprintf("%v", item))
		if text != "" {
			options = append(options, text)
		}
	}
	return options
}

func normalizeOptionAnswers(answer interface{}, questionType model.QuestionType, optionCount int) []int {
	candidates := coerceAnswerList(answer)
	if questionType == model.SingleChoice {
		if len(candidates) == 0 {
			return nil
		}
		idx := candidates[0]
		if idx < 0 || idx >= optionCount {
			return nil
		}
		return []int{idx}
	}

	seen := make(map[int]bool)
	var valid []int
	for _, idx := range candidates {
		if idx >= 0 && idx < optionCount && !seen[idx] {
			seen[idx] = true
			valid = append(valid, idx)
		}
	}
	sort.Ints(valid)
	if len(valid) == 0 {
		return nil
	}
	return valid
}

// coerceAnswerList 兼容整数、数字字符串、字母串与嵌套数组几种答案写法
func coerceAnswerList(answer interface{}) []int {
	switch v := answer.(type) {
	case float64:
		return []int{int(v)}
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		if n, err := strconv.Atoi(trimmed); err == nil {
			return []int{n}
		}
		var result []int
		for _, ch := range strings.ToUpper(trimmed) {
			if ch >= 'A' && ch <= 'Z' {
				result = append(result, int(ch-'A'))
			}
		}
		return result
	case []interface{}:
		var result []int
		for _, item := range v {
			result = append(result, coerceAnswerList(item)...)
		}
		return result
	}
	return nil
}

func normalizeTextAnswer(answer interface{}) string {
	switch v := answer.(type) {
	case nil:
		return ""
	case []interface{}:
		var parts []string
		for _, item := range v {
			text := strings.TrimSpace(fmt.Sprintf("%v", item))
			if text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "；")
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func (s *AIService) normalizeKeywords(keywords interface{}, fallback string) []string {
	switch v := keywords.(type) {
	case []interface{}:
		var normalized []string
		for _, item := range v {
			text := strings.TrimSpace(fmt.Sprintf("%v", item))
			if text != "" {
				normalized = append(normalized, text)
			}
		}
		if len(normalized) > 0 {
			return capKeywords(normalized)
		}
	case string:
		if strings.TrimSpace(v) != "" {
			var normalized []string
			for _, segment := range strings.Split(v, "，") {
				if trimmed := strings.TrimSpace(segment); trimmed != "" {
					normalized = append(normalized, trimmed)
				}
			}
			return capKeywords(normalized)
		}
	}
	if fallback != "" {
		return capKeywords(s.extractor.Tokens(fallback))
	}
	return nil
}

func capKeywords(keywords []string) []string {
	if len(keywords) > 8 {
		return keywords[:8]
	}
	return keywords
}

func timeoutFor(cfg *model.AIEndpointConfig) time.Duration {
	seconds := cfg.TimeoutSeconds
	if seconds <= 0 {
		seconds = 45
	}
	return time.Duration(seconds * float64(time.Second))
}

func sanitizeURL(url string) string {
	if idx := strings.Index(url, "#"); idx != -1 {
		return url[:idx]
	}
	return url
}
