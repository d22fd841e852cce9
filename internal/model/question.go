package model

import "strings"

// QuestionType 题型枚举，序列化为可读名称以保证 JSONL 历史记录可直接阅读
type QuestionType string

const (
	SingleChoice QuestionType = "SINGLE_CHOICE"
	MultiChoice  QuestionType = "MULTI_CHOICE"
	Cloze        QuestionType = "CLOZE"
	QA           QuestionType = "QA"
)

// AllQuestionTypes 固定题型顺序：单选、多选、填空、问答
func AllQuestionTypes() []QuestionType {
	return []QuestionType{SingleChoice, MultiChoice, Cloze, QA}
}

func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultiChoice, Cloze, QA:
		return true
	}
	return false
}

// IsChoice 单选或多选
func (t QuestionType) IsChoice() bool {
	return t == SingleChoice || t == MultiChoice
}

// ParseQuestionType 解析题型参数，兼容短别名（single/multi/cloze/qa）与完整名称
func ParseQuestionType(raw string) (QuestionType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "single", "single_choice", "single-choice", "sc":
		return SingleChoice, true
	case "multi", "multi_choice", "multi-choice", "mc":
		return MultiChoice, true
	case "cloze", "fill", "fill_blank":
		return Cloze, true
	case "qa", "open", "open_ended":
		return QA, true
	}
	if t := QuestionType(strings.ToUpper(strings.TrimSpace(raw))); t.Valid() {
		return t, true
	}
	return "", false
}

// Question 题目快照，生成后不再修改
type Question struct {
	Identifier     string       `json:"identifier"`
	QuestionType   QuestionType `json:"question_type"`
	Prompt         string       `json:"prompt"`
	Options        []string     `json:"options,omitempty"`
	CorrectOptions []int        `json:"correct_options,omitempty"`
	AnswerText     string       `json:"answer_text,omitempty"`
	Explanation    string       `json:"explanation,omitempty"`
	Keywords       []string     `json:"keywords,omitempty"`
}

// Component 从标识符前缀提取部件名，未分类返回兜底标签
func (q *Question) Component() string {
	if idx := strings.Index(q.Identifier, "-"); idx > 0 {
		return q.Identifier[:idx]
	}
	return "未分类"
}
