// Package grader 是唯一的判分实现，CLI 与 Web 共用。
// 填空题采用归一化等值比较、问答题采用关键词覆盖率阈值（两套历史实现中较严格的一种）。
package grader

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"safety_quiz_backend/internal/model"
)

// CoverageThreshold 问答题关键词覆盖率及格线
const CoverageThreshold = 0.6

// Grade 对一道题判分。纯函数：只依赖题目与原始作答串，永远返回结论，不报错。
func Grade(q *model.Question, rawAnswer string) model.GradeOutcome {
	switch q.QuestionType {
	case model.SingleChoice:
		return gradeSingleChoice(q, rawAnswer)
	case model.MultiChoice:
		return gradeMultiChoice(q, rawAnswer)
	case model.Cloze:
		return gradeCloze(q, rawAnswer)
	case model.QA:
		return gradeQA(q, rawAnswer)
	}
	return model.GradeOutcome{PlainExplanation: "该题型尚未实现自动判分。"}
}

func gradeSingleChoice(q *model.Question, rawAnswer string) model.GradeOutcome {
	correctIdx := -1
	if len(q.CorrectOptions) > 0 {
		correctIdx = q.CorrectOptions[0]
	}
	correctLabel := OptionLabel(correctIdx)

	isCorrect := false
	if rawAnswer != "" {
		idx, ok := LetterToIndex(rawAnswer)
		if ok && idx < len(q.Options) {
			for _, c := range q.CorrectOptions {
				if idx == c {
					isCorrect = true
					break
				}
			}
		}
	}

	keySentence := strings.TrimSpace(q.AnswerText)
	if keySentence == "" {
		keySentence = strings.TrimSpace(q.Explanation)
	}
	return model.GradeOutcome{
		IsCorrect:        isCorrect,
		PlainExplanation: explainSingle(correctLabel, keySentence, isCorrect, rawAnswer),
	}
}

func gradeMultiChoice(q *model.Question, rawAnswer string) model.GradeOutcome {
	correctSet := make(map[int]bool, len(q.CorrectOptions))
	for _, idx := range q.CorrectOptions {
		correctSet[idx] = true
	}
	correctLabels := FormatIndices(q.CorrectOptions)

	var parsed []int
	parsedOK := false
	isCorrect := false
	if rawAnswer != "" {
		parsed, parsedOK = ParseMultiAnswer(rawAnswer, len(q.Options))
		if parsedOK && len(parsed) == len(correctSet) {
			isCorrect = true
			for _, idx := range parsed {
				if !correctSet[idx] {
					isCorrect = false
					break
				}
			}
		}
	}

	summary := q.AnswerText
	if summary == "" {
		var correctTexts []string
		for _, idx := range q.CorrectOptions {
			if idx >= 0 && idx < len(q.Options) {
				correctTexts = append(correctTexts, strings.TrimSpace(q.Options[idx]))
			}
		}
		summary = strings.Join(correctTexts, "；")
	}

	outcome := model.GradeOutcome{
		IsCorrect:        isCorrect,
		PlainExplanation: explainMulti(q, correctLabels, summary, isCorrect),
	}
	if parsedOK {
		outcome.Extra = map[string]interface{}{"selected_indices": parsed}
	}
	return outcome
}

func gradeCloze(q *model.Question, rawAnswer string) model.GradeOutcome {
	normalizedUser := NormalizeAnswer(rawAnswer)
	normalizedRef := NormalizeAnswer(q.AnswerText)
	isCorrect := normalizedRef != "" && normalizedUser == normalizedRef
	return model.GradeOutcome{
		IsCorrect:        isCorrect,
		PlainExplanation: explainCloze(q, isCorrect),
	}
}

func gradeQA(q *model.Question, rawAnswer string) model.GradeOutcome {
	matched := []string{}
	ratio := 0.0
	isCorrect := false
	if rawAnswer != "" {
		for _, kw := range q.Keywords {
			if kw != "" && strings.Contains(rawAnswer, kw) {
				matched = append(matched, kw)
			}
		}
		denominator := len(q.Keywords)
		if denominator < 1 {
			denominator = 1
		}
		ratio = float64(len(matched)) / float64(denominator)
		if len(q.Keywords) > 0 {
			isCorrect = ratio >= CoverageThreshold
		} else {
			isCorrect = strings.TrimSpace(rawAnswer) != ""
		}
	}
	return model.GradeOutcome{
		IsCorrect:        isCorrect,
		PlainExplanation: explainQA(q, matched, ratio, isCorrect),
		Extra: map[string]interface{}{
			"matched_keywords": matched,
			"coverage_ratio":   ratio,
		},
	}
}

// OptionLabel 0→A、1→B……，非法索引返回占位符
func OptionLabel(idx int) string {
	if idx < 0 || idx > 25 {
		return "—"
	}
	return string(rune('A' + idx))
}

// FormatIndices 选项索引列表格式化为 "A, C" 形式
func FormatIndices(indices []int) string {
	if len(indices) == 0 {
		return "—"
	}
	labels := make([]string, 0, len(indices))
	for _, idx := range indices {
		labels = append(labels, OptionLabel(idx))
	}
	return strings.Join(labels, ", ")
}

// LetterToIndex 取修剪、大写后答案的首字母并映射为选项索引
func LetterToIndex(rawAnswer string) (int, bool) {
	answer := strings.ToUpper(strings.TrimSpace(rawAnswer))
	if answer == "" {
		return 0, false
	}
	letter := []rune(answer)[0]
	if letter < 'A' || letter > 'Z' {
		return 0, false
	}
	return int(letter - 'A'), true
}

// ParseMultiAnswer 解析多选答案，兼容 "A,B,C" 与 "ABC" 两种输入。
// 任何越界或非字母的选择都使整个答案无效（返回 ok=false），不产生部分结果。
func ParseMultiAnswer(rawAnswer string, optionCount int) ([]int, bool) {
	cleaned := strings.ReplaceAll(rawAnswer, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "，", ",")
	cleaned = strings.ToUpper(cleaned)
	if cleaned == "" {
		return []int{}, true
	}
	var tokens []string
	for _, token := range strings.Split(cleaned, ",") {
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 1 && len([]rune(tokens[0])) > 1 {
		runes := []rune(tokens[0])
		tokens = tokens[:0]
		for _, r := range runes {
			tokens = append(tokens, string(r))
		}
	}
	seen := make(map[int]bool)
	var indices []int
	for _, token := range tokens {
		letter := []rune(token)[0]
		if letter < 'A' || letter > 'Z' {
			return nil, false
		}
		idx := int(letter - 'A')
		if idx >= optionCount {
			return nil, false
		}
		if !seen[idx] {
			seen[idx] = true
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)
	return indices, true
}

// NormalizeAnswer 去除内部空格、全角逗号转半角后修剪，用于填空题比对
func NormalizeAnswer(text string) string {
	normalized := strings.ReplaceAll(text, " ", "")
	normalized = strings.ReplaceAll(normalized, "，", ",")
	return strings.TrimSpace(normalized)
}

func explainSingle(correctLabel, keySentence string, isCorrect bool, rawAnswer string) string {
	if keySentence == "" {
		keySentence = "请按知识点要求执行。"
	}
	if isCorrect {
		return fmt.Sprintf("这题你选得很准，记住%s选项讲的是：%s。", correctLabel, keySentence)
	}
	userReply := rawAnswer
	if userReply == "" {
		userReply = "未作答"
	}
	return fmt.Sprintf("正确答案是%s选项，你刚才填的是“%s”。简单来说，这条要求强调：%s，以后留意不要选错。",
		correctLabel, userReply, keySentence)
}

func explainMulti(q *model.Question, correctLabels, summary string, isCorrect bool) string {
	if summary == "" {
		summary = q.Explanation
	}
	if summary == "" {
		summary = "按原文把所有条件都做到。"
	}
	if isCorrect {
		return fmt.Sprintf("多选题全部命中，%s 选项共同强调：%s。记得逐条检查。", correctLabels, summary)
	}
	return fmt.Sprintf("正确选项是 %s，这些内容的意思是：%s。把所有要点一次记牢，别再漏选或多选。",
		correctLabels, summary)
}

func explainCloze(q *model.Question, isCorrect bool) string {
	answer := strings.TrimSpace(q.AnswerText)
	reference := strings.TrimSpace(q.Explanation)
	if isCorrect {
		return fmt.Sprintf("空格填写“%s”就对了，原文提示就是：%s。", answer, reference)
	}
	return fmt.Sprintf("空格应填写“%s”，原文意思是：%s。记住这个关键词，下次不要再漏。", answer, reference)
}

func explainQA(q *model.Question, matched []string, ratio float64, isCorrect bool) string {
	reference := strings.TrimSpace(q.AnswerText)
	if reference == "" {
		reference = strings.TrimSpace(q.Explanation)
	}
	ratioPercent := int(math.Round(ratio * 100))
	if isCorrect {
		matchedText := "关键点"
		if len(matched) > 0 {
			matchedText = strings.Join(matched, "、")
		}
		return fmt.Sprintf("答案覆盖了主要关键词（%s），大约 %d%% 的要求已提及。核心记忆点：%s。",
			matchedText, ratioPercent, reference)
	}
	missPart := "请结合原文补充要点。"
	if len(q.Keywords) > 0 {
		hint := q.Keywords
		if len(hint) > 6 {
			hint = hint[:6]
		}
		missPart = fmt.Sprintf("建议把关键字补齐：%s。", strings.Join(hint, "、"))
	}
	return fmt.Sprintf("目前覆盖率只有 %d%% ，需要再补充。参考答案浓缩要点：%s。%s",
		ratioPercent, reference, missPart)
}

// WrongChoiceFeedback 多选错误时的误选/漏选明细（按索引差集）
func WrongChoiceFeedback(q *model.Question, selected []int) (extraneous, missing []string) {
	correctSet := make(map[int]bool, len(q.CorrectOptions))
	for _, idx := range q.CorrectOptions {
		correctSet[idx] = true
	}
	selectedSet := make(map[int]bool, len(selected))
	for _, idx := range selected {
		selectedSet[idx] = true
	}
	for _, idx := range selected {
		if !correctSet[idx] && idx >= 0 && idx < len(q.Options) {
			extraneous = append(extraneous, q.Options[idx])
		}
	}
	for _, idx := range q.CorrectOptions {
		if !selectedSet[idx] && idx >= 0 && idx < len(q.Options) {
			missing = append(missing, q.Options[idx])
		}
	}
	return extraneous, missing
}

// CorrectAnswerText 题目的标准答案展示文本
func CorrectAnswerText(q *model.Question) string {
	switch q.QuestionType {
	case model.SingleChoice:
		if len(q.CorrectOptions) > 0 {
			idx := q.CorrectOptions[0]
			if idx >= 0 && idx < len(q.Options) {
				return fmt.Sprintf("%s. %s", OptionLabel(idx), q.Options[idx])
			}
		}
	case model.MultiChoice:
		indices := append([]int(nil), q.CorrectOptions...)
		sort.Ints(indices)
		var b strings.Builder
		for _, idx := range indices {
			b.WriteString(OptionLabel(idx))
		}
		return b.String()
	case model.Cloze, model.QA:
		if q.AnswerText != "" {
			return q.AnswerText
		}
		return strings.Join(q.Keywords, ", ")
	}
	return ""
}
