package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"safety_quiz_backend/internal/config"
	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/repository"
)

func newTestAIService(t *testing.T) *AIService {
	t.Helper()
	return NewAIService(config.AIConfig{}, repository.NewAIConfigRepository(t.TempDir()))
}

func endpointConfig(url string) *model.AIEndpointConfig {
	return &model.AIEndpointConfig{URL: url, Key: "sk-test", Model: "test-model", TimeoutSeconds: 5}
}

func chatResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"content": content}},
		},
	}
}

func TestGenerateQuestionsParsesChatEnvelope(t *testing.T) {
	payload := `[
		{"id": "AI-限速器-1", "component": "限速器", "type": "single",
		 "prompt": "限速器多久校验一次？",
		 "options": ["每月", "每年", "每五年", "无需校验"],
		 "answer": 1, "explanation": "每年校验。"},
		{"component": "门锁", "type": "qa",
		 "prompt": "请概述门锁检查要求。", "answer": "每月检查啮合深度不小于7mm"}
	]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		json.NewEncoder(w).Encode(chatResponse(payload))
	}))
	defer server.Close()

	svc := newTestAIService(t)
	questions, err := svc.GenerateQuestions(context.Background(), endpointConfig(server.URL), nil, 5, nil, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	if len(questions) != 2 {
		t.Fatalf("got %d questions", len(questions))
	}
	first := questions[0]
	if first.QuestionType != model.SingleChoice || !reflect.DeepEqual(first.CorrectOptions, []int{1}) {
		t.Errorf("first question = %+v", first)
	}
	if first.AnswerText != "每年" {
		t.Errorf("answer text = %q", first.AnswerText)
	}
	second := questions[1]
	if second.QuestionType != model.QA {
		t.Errorf("second type = %s", second.QuestionType)
	}
	if second.Identifier != "AI-门锁-2" {
		t.Errorf("fallback identifier = %q", second.Identifier)
	}
	if len(second.Keywords) == 0 {
		t.Error("expected fallback keywords from answer text")
	}
}

func TestGenerateQuestionsExtractsEmbeddedJSON(t *testing.T) {
	content := "以下是生成的题目：\n[{\"component\": \"限速器\", \"type\": \"cloze\", \"prompt\": \"填空题：每____校验一次。\", \"answer\": \"年\"}]\n希望有帮助。"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse(content))
	}))
	defer server.Close()

	svc := newTestAIService(t)
	questions, err := svc.GenerateQuestions(context.Background(), endpointConfig(server.URL), nil, 3, nil, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	if len(questions) != 1 || questions[0].QuestionType != model.Cloze {
		t.Fatalf("questions = %+v", questions)
	}
}

func TestGenerateQuestionsQuestionsWrapper(t *testing.T) {
	content := `{"questions": [{"component": "门锁", "type": "qa", "prompt": "概述门锁要求。", "answer": "每月检查"}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"result": content})
	}))
	defer server.Close()

	svc := newTestAIService(t)
	questions, err := svc.GenerateQuestions(context.Background(), endpointConfig(server.URL), nil, 3, nil, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	if len(questions) != 1 {
		t.Fatalf("questions = %+v", questions)
	}
}

func TestGenerateQuestionsTypeFilterAndCap(t *testing.T) {
	payload := `[
		{"component": "a", "type": "single", "prompt": "q1", "options": ["x","y"], "answer": 0},
		{"component": "b", "type": "qa", "prompt": "q2", "answer": "a2"},
		{"component": "c", "type": "qa", "prompt": "q3", "answer": "a3"},
		{"component": "d", "type": "qa", "prompt": "q4", "answer": "a4"}
	]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse(payload))
	}))
	defer server.Close()

	svc := newTestAIService(t)
	questions, err := svc.GenerateQuestions(context.Background(), endpointConfig(server.URL), nil, 2, []model.QuestionType{model.QA}, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	if len(questions) != 2 {
		t.Fatalf("got %d questions, want count cap 2", len(questions))
	}
	for _, q := range questions {
		if q.QuestionType != model.QA {
			t.Errorf("type filter failed: %s", q.QuestionType)
		}
	}
}

func TestGenerateQuestionsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	svc := newTestAIService(t)
	_, err := svc.GenerateQuestions(context.Background(), endpointConfig(server.URL), nil, 3, nil, 0.7)
	if !errors.Is(err, ErrAITransport) {
		t.Errorf("err = %v, want ErrAITransport", err)
	}
}

func TestGenerateQuestionsFormatError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse("抱歉，我无法生成题目。"))
	}))
	defer server.Close()

	svc := newTestAIService(t)
	_, err := svc.GenerateQuestions(context.Background(), endpointConfig(server.URL), nil, 3, nil, 0.7)
	if !errors.Is(err, ErrAIResponseFormat) {
		t.Errorf("err = %v, want ErrAIResponseFormat", err)
	}
}

func TestEvaluateAnswer(t *testing.T) {
	judgement := `{"is_correct": true, "score": 85, "explanation": "覆盖主要要点", "matched_points": ["校验"]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse(judgement))
	}))
	defer server.Close()

	svc := newTestAIService(t)
	q := &model.Question{
		QuestionType: model.QA,
		Prompt:       "概述限速器检查要求。",
		AnswerText:   "每年校验",
	}
	result, err := svc.EvaluateAnswer(context.Background(), endpointConfig(server.URL), q, "要每年做校验")
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsCorrect || result.Score != 85 {
		t.Errorf("result = %+v", result)
	}
}

func TestCoerceAnswerList(t *testing.T) {
	tests := []struct {
		in   interface{}
		want []int
	}{
		{float64(2), []int{2}},
		{"2", []int{2}},
		{"B", []int{1}},
		{"bc", []int{1, 2}},
		{"A,C", []int{0, 2}},
		{[]interface{}{float64(0), "C"}, []int{0, 2}},
		{"", nil},
		{nil, nil},
	}
	for _, tt := range tests {
		got := coerceAnswerList(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("coerceAnswerList(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeOptionAnswers(t *testing.T) {
	if got := normalizeOptionAnswers(float64(5), model.SingleChoice, 4); got != nil {
		t.Errorf("out of range single = %v", got)
	}
	if got := normalizeOptionAnswers("CAB", model.MultiChoice, 3); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("multi = %v", got)
	}
	if got := normalizeOptionAnswers([]interface{}{float64(1), float64(1), float64(9)}, model.MultiChoice, 3); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("dedup/out-of-range = %v", got)
	}
}

func TestBuildQuestionRejectsInvalid(t *testing.T) {
	svc := newTestAIService(t)

	if q := svc.buildQuestion(map[string]interface{}{"type": "essay", "prompt": "x"}, 1); q != nil {
		t.Error("unknown type should be skipped")
	}
	if q := svc.buildQuestion(map[string]interface{}{"type": "single", "prompt": ""}, 1); q != nil {
		t.Error("empty prompt should be skipped")
	}
	if q := svc.buildQuestion(map[string]interface{}{"type": "single", "prompt": "x"}, 1); q != nil {
		t.Error("missing options should be skipped")
	}
	if q := svc.buildQuestion(map[string]interface{}{"type": "cloze", "prompt": "x"}, 1); q != nil {
		t.Error("cloze without answer should be skipped")
	}
}

func TestActiveConfigPrefersRuntimeFile(t *testing.T) {
	repo := repository.NewAIConfigRepository(t.TempDir())
	svc := NewAIService(config.AIConfig{BaseURL: "https://default.example.com", APIKey: "default-key", Model: "default-model"}, repo)

	cfg := svc.ActiveConfig()
	if cfg == nil || cfg.Model != "default-model" {
		t.Fatalf("expected fallback to defaults, got %+v", cfg)
	}

	repo.Save(&model.AIEndpointConfig{URL: "https://runtime.example.com", Key: "runtime-key", Model: "runtime-model"})
	cfg = svc.ActiveConfig()
	if cfg == nil || cfg.Model != "runtime-model" {
		t.Fatalf("runtime config should win, got %+v", cfg)
	}
}

func TestActiveConfigNilWhenIncomplete(t *testing.T) {
	svc := newTestAIService(t)
	if cfg := svc.ActiveConfig(); cfg != nil {
		t.Errorf("expected nil, got %+v", cfg)
	}
}

func TestSanitizeURL(t *testing.T) {
	if got := sanitizeURL("https://api.example.com/v1#fragment"); got != "https://api.example.com/v1" {
		t.Errorf("got %q", got)
	}
	if got := sanitizeURL("https://api.example.com/v1"); got != "https://api.example.com/v1" {
		t.Errorf("got %q", got)
	}
}
