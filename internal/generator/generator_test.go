package generator

import (
	"reflect"
	"strings"
	"testing"

	"safety_quiz_backend/internal/knowledge"
	"safety_quiz_backend/internal/model"
)

func testEntries() []model.KnowledgeEntry {
	texts := map[string]string{
		"限速器": "限速器每年必须进行动作速度校验。校验时轿厢应空载并以检修速度运行。发现动作速度异常必须立即停梯检修。",
		"缓冲器": "液压缓冲器应每月检查油位是否在规定范围。缓冲器复位试验应确认柱塞完全复位。缓冲器顶面应保持清洁无杂物。",
		"门锁":  "层门锁紧装置应每月进行啮合深度检查。啮合深度不得小于7mm。门锁电气触点应可靠接通。",
	}
	var entries []model.KnowledgeEntry
	for _, component := range []string{"限速器", "缓冲器", "门锁"} {
		raw := texts[component]
		entries = append(entries, model.KnowledgeEntry{
			Component: component,
			RawText:   raw,
			Sentences: knowledge.SplitSentences(raw),
		})
	}
	return entries
}

func TestBuildSingleChoiceInvariants(t *testing.T) {
	g := New(testEntries(), 42)
	questions := g.BuildSingleChoice()
	if len(questions) == 0 {
		t.Fatal("expected single choice questions")
	}
	for _, q := range questions {
		if len(q.Options) != 4 {
			t.Errorf("%s: options = %d, want 4", q.Identifier, len(q.Options))
		}
		if len(q.CorrectOptions) != 1 {
			t.Fatalf("%s: correct options = %v, want exactly one", q.Identifier, q.CorrectOptions)
		}
		idx := q.CorrectOptions[0]
		if idx < 0 || idx >= len(q.Options) {
			t.Fatalf("%s: correct index %d out of range", q.Identifier, idx)
		}
		if q.Options[idx] != q.AnswerText {
			t.Errorf("%s: option at correct index %q != answer %q", q.Identifier, q.Options[idx], q.AnswerText)
		}
		if !strings.Contains(q.Prompt, q.Component()) {
			t.Errorf("%s: prompt %q missing component", q.Identifier, q.Prompt)
		}
	}
}

func TestBuildMultiChoiceInvariants(t *testing.T) {
	g := New(testEntries(), 7)
	questions := g.BuildMultiChoice()
	if len(questions) == 0 {
		t.Fatal("expected multi choice questions")
	}
	for _, q := range questions {
		if len(q.CorrectOptions) < 2 || len(q.CorrectOptions) > 3 {
			t.Errorf("%s: correct count = %d, want 2..3", q.Identifier, len(q.CorrectOptions))
		}
		for _, idx := range q.CorrectOptions {
			if idx < 0 || idx >= len(q.Options) {
				t.Fatalf("%s: correct index %d out of range", q.Identifier, idx)
			}
		}
		if len(q.Options) <= len(q.CorrectOptions) {
			t.Errorf("%s: no distractors (%d options, %d correct)", q.Identifier, len(q.Options), len(q.CorrectOptions))
		}
	}
}

func TestSameSeedIsReproducible(t *testing.T) {
	first := New(testEntries(), 99).BuildQuestionBank()
	second := New(testEntries(), 99).BuildQuestionBank()
	if !reflect.DeepEqual(first, second) {
		t.Error("same seed produced different question banks")
	}
}

func TestEmptyEntryOnlyYieldsOpenEnded(t *testing.T) {
	entries := []model.KnowledgeEntry{{Component: "空条目", RawText: "", Sentences: nil}}
	g := New(entries, 1)
	bank := g.BuildQuestionBank()
	if len(bank) != 1 {
		t.Fatalf("expected exactly one question, got %d", len(bank))
	}
	if bank[0].QuestionType != model.QA {
		t.Errorf("question type = %s, want QA", bank[0].QuestionType)
	}
}

func TestBuildClozeNumericPriority(t *testing.T) {
	raw := "超载时应在1秒内发出警示信号。"
	entries := []model.KnowledgeEntry{{
		Component: "称重装置",
		RawText:   raw,
		Sentences: knowledge.SplitSentences(raw),
	}}
	questions := New(entries, 3).BuildCloze()
	if len(questions) != 1 {
		t.Fatalf("expected 1 cloze question, got %d", len(questions))
	}
	q := questions[0]
	if q.AnswerText != "1" {
		t.Errorf("answer = %q, want numeric token", q.AnswerText)
	}
	if !strings.Contains(q.Prompt, "____") {
		t.Errorf("prompt %q missing blank marker", q.Prompt)
	}
	if !strings.HasPrefix(q.Prompt, "填空题：") {
		t.Errorf("prompt %q missing prefix", q.Prompt)
	}
}

func TestMakeClozeComponentFallback(t *testing.T) {
	e := NewKeywordExtractor(nil)
	blanked, answer, ok := e.MakeCloze("限速器动作后必须由专业人员复位。", "限速器")
	if !ok {
		t.Fatal("expected cloze to succeed")
	}
	if answer != "限速器" {
		t.Errorf("answer = %q, want component name", answer)
	}
	if !strings.HasPrefix(blanked, "____") {
		t.Errorf("blanked = %q", blanked)
	}
}

func TestMakeClozeWordFallbackSkipsStopwords(t *testing.T) {
	e := NewKeywordExtractor(nil)
	_, answer, ok := e.MakeCloze("检查确认轿厢平层准确。", "门锁")
	if !ok {
		t.Fatal("expected cloze to succeed")
	}
	if answer == "检查" || answer == "确认" {
		t.Errorf("answer %q should not be a stopword", answer)
	}
}

func TestMakeClozeFailsWithoutCandidates(t *testing.T) {
	e := NewKeywordExtractor(nil)
	if _, _, ok := e.MakeCloze("check OK", "door"); ok {
		t.Error("expected cloze to fail on text without CJK or numeric tokens")
	}
}

func TestBuildOpenEndedKeywords(t *testing.T) {
	entries := testEntries()
	questions := New(entries, 5).BuildOpenEnded()
	if len(questions) != len(entries) {
		t.Fatalf("expected one QA per entry, got %d", len(questions))
	}
	for i, q := range questions {
		if len(q.Keywords) == 0 {
			t.Errorf("%s: no keywords", q.Identifier)
			continue
		}
		if len(q.Keywords) > 8 {
			t.Errorf("%s: %d keywords, cap is 8", q.Identifier, len(q.Keywords))
		}
		if q.Keywords[0] != entries[i].Component {
			t.Errorf("%s: first keyword = %q, want component %q", q.Identifier, q.Keywords[0], entries[i].Component)
		}
		if q.AnswerText == "" {
			t.Errorf("%s: empty reference answer", q.Identifier)
		}
	}
}

func TestBuildByTypesFiltersTypes(t *testing.T) {
	g := New(testEntries(), 11)
	bank := g.BuildByTypes([]model.QuestionType{model.Cloze, model.QA})
	if len(bank) == 0 {
		t.Fatal("expected questions")
	}
	for _, q := range bank {
		if q.QuestionType != model.Cloze && q.QuestionType != model.QA {
			t.Errorf("%s: unexpected type %s", q.Identifier, q.QuestionType)
		}
	}
}

func TestWithNumericUnitsExtendsPattern(t *testing.T) {
	e := NewKeywordExtractor([]string{"m/s", "年", "次", "mm"})
	_, answer, ok := e.MakeCloze("啮合深度不得小于7mm。", "门锁")
	if !ok {
		t.Fatal("expected cloze to succeed")
	}
	if answer != "7mm" && answer != "7" {
		t.Errorf("answer = %q", answer)
	}
}
