package grader

import (
	"reflect"
	"strings"
	"testing"

	"safety_quiz_backend/internal/model"
)

func singleChoiceQuestion() *model.Question {
	return &model.Question{
		Identifier:     "限速器-SC-1",
		QuestionType:   model.SingleChoice,
		Prompt:         "关于限速器，以下哪项描述是正确的？",
		Options:        []string{"每月清洗油杯", "每年进行动作速度校验", "随意调整弹簧", "无需定期检查"},
		CorrectOptions: []int{1},
		AnswerText:     "每年进行动作速度校验",
	}
}

func multiChoiceQuestion() *model.Question {
	return &model.Question{
		Identifier:     "缓冲器-MC-1",
		QuestionType:   model.MultiChoice,
		Prompt:         "关于缓冲器，以下哪些描述是正确的？（多选）",
		Options:        []string{"检查油位", "确认柱塞复位", "顶面保持清洁", "可以带载试验", "无需检查"},
		CorrectOptions: []int{0, 1, 2},
		AnswerText:     "检查油位；确认柱塞复位；顶面保持清洁",
	}
}

func TestGradeSingleChoice(t *testing.T) {
	q := singleChoiceQuestion()

	tests := []struct {
		answer  string
		correct bool
	}{
		{"B", true},
		{"b", true},
		{" b ", true},
		{"B. 每年进行动作速度校验", true},
		{"A", false},
		{"", false},
		{"1", false},
		{"Z", false},
	}
	for _, tt := range tests {
		outcome := Grade(q, tt.answer)
		if outcome.IsCorrect != tt.correct {
			t.Errorf("answer %q: correct = %v, want %v", tt.answer, outcome.IsCorrect, tt.correct)
		}
		if outcome.PlainExplanation == "" {
			t.Errorf("answer %q: empty explanation", tt.answer)
		}
	}
}

func TestParseMultiAnswer(t *testing.T) {
	tests := []struct {
		raw  string
		want []int
		ok   bool
	}{
		{"A", []int{0}, true},
		{"a", []int{0}, true},
		{"A,B", []int{0, 1}, true},
		{"AB", []int{0, 1}, true},
		{"A, B, C", []int{0, 1, 2}, true},
		{"A，C", []int{0, 2}, true},
		{"BCA", []int{0, 1, 2}, true},
		{"AAB", []int{0, 1}, true},
		{"", []int{}, true},
		{"A,F", nil, false},
		{"A,1", nil, false},
		{"你好", nil, false},
	}
	for _, tt := range tests {
		got, ok := ParseMultiAnswer(tt.raw, 5)
		if ok != tt.ok {
			t.Errorf("ParseMultiAnswer(%q): ok = %v, want %v", tt.raw, ok, tt.ok)
			continue
		}
		if ok && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseMultiAnswer(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestGradeMultiChoice(t *testing.T) {
	q := multiChoiceQuestion()

	tests := []struct {
		answer  string
		correct bool
	}{
		{"A,B,C", true},
		{"ABC", true},
		{"CBA", true},
		{"a，b，c", true},
		{"A,B", false},
		{"A,B,C,D", false},
		{"A,F", false},
		{"", false},
	}
	for _, tt := range tests {
		outcome := Grade(q, tt.answer)
		if outcome.IsCorrect != tt.correct {
			t.Errorf("answer %q: correct = %v, want %v", tt.answer, outcome.IsCorrect, tt.correct)
		}
	}

	outcome := Grade(q, "A,B")
	selected, ok := outcome.Extra["selected_indices"].([]int)
	if !ok || !reflect.DeepEqual(selected, []int{0, 1}) {
		t.Errorf("selected_indices = %v", outcome.Extra["selected_indices"])
	}
}

func TestGradeClozeNormalization(t *testing.T) {
	q := &model.Question{
		Identifier:   "门锁-CZ-1",
		QuestionType: model.Cloze,
		Prompt:       "填空题：啮合深度不得小于____。",
		AnswerText:   "7mm",
		Explanation:  "啮合深度不得小于7mm。",
	}
	if !Grade(q, "7mm").IsCorrect {
		t.Error("exact answer should pass")
	}
	if !Grade(q, " 7 mm ").IsCorrect {
		t.Error("internal spaces should be ignored")
	}
	if Grade(q, "8mm").IsCorrect {
		t.Error("wrong answer should fail")
	}
	if Grade(q, "").IsCorrect {
		t.Error("empty answer should fail")
	}

	// 全角逗号与半角逗号归一化后等值
	multi := &model.Question{
		QuestionType: model.Cloze,
		AnswerText:   "A,B",
	}
	if !Grade(multi, "A，B").IsCorrect {
		t.Error("full width comma should normalize")
	}
}

func TestGradeClozeEmptyReferenceNeverPasses(t *testing.T) {
	q := &model.Question{QuestionType: model.Cloze, AnswerText: ""}
	if Grade(q, "").IsCorrect {
		t.Error("empty reference should never grade correct")
	}
}

func TestGradeQACoverage(t *testing.T) {
	q := &model.Question{
		Identifier:   "限速器-QA-1",
		QuestionType: model.QA,
		Prompt:       "问答题：请概述限速器的关键检查或操作要求。",
		AnswerText:   "每年进行动作速度校验；发现异常必须停梯检修",
		Keywords:     []string{"限速器", "校验", "停梯"},
	}

	// 3个关键词命中2个，覆盖率 2/3 >= 0.6
	outcome := Grade(q, "限速器需要定期校验")
	if !outcome.IsCorrect {
		t.Errorf("coverage 2/3 should pass, got %+v", outcome)
	}
	ratio, _ := outcome.Extra["coverage_ratio"].(float64)
	if ratio < 0.66 || ratio > 0.67 {
		t.Errorf("ratio = %v", ratio)
	}

	// 只命中1个，1/3 < 0.6
	if Grade(q, "做好校验").IsCorrect {
		t.Error("coverage 1/3 should fail")
	}
	if Grade(q, "").IsCorrect {
		t.Error("empty answer should fail")
	}
}

func TestGradeQANoKeywords(t *testing.T) {
	q := &model.Question{QuestionType: model.QA, AnswerText: "参考答案"}
	if !Grade(q, "随便写点什么").IsCorrect {
		t.Error("non-empty answer should pass when no keywords")
	}
	if Grade(q, "").IsCorrect {
		t.Error("empty answer should fail")
	}
}

func TestWrongChoiceFeedback(t *testing.T) {
	q := multiChoiceQuestion()
	extraneous, missing := WrongChoiceFeedback(q, []int{0, 3})
	if len(extraneous) != 1 || extraneous[0] != "可以带载试验" {
		t.Errorf("extraneous = %v", extraneous)
	}
	if len(missing) != 2 {
		t.Errorf("missing = %v", missing)
	}
}

func TestCorrectAnswerText(t *testing.T) {
	if got := CorrectAnswerText(singleChoiceQuestion()); !strings.HasPrefix(got, "B. ") {
		t.Errorf("single = %q", got)
	}
	if got := CorrectAnswerText(multiChoiceQuestion()); got != "ABC" {
		t.Errorf("multi = %q", got)
	}
	cloze := &model.Question{QuestionType: model.Cloze, AnswerText: "7mm"}
	if got := CorrectAnswerText(cloze); got != "7mm" {
		t.Errorf("cloze = %q", got)
	}
}

func TestOptionLabelAndFormatIndices(t *testing.T) {
	if OptionLabel(0) != "A" || OptionLabel(2) != "C" {
		t.Error("label mapping broken")
	}
	if OptionLabel(-1) != "—" {
		t.Error("invalid index should return placeholder")
	}
	if got := FormatIndices([]int{0, 2}); got != "A, C" {
		t.Errorf("FormatIndices = %q", got)
	}
}
