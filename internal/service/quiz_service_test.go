package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"safety_quiz_backend/internal/config"
	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/repository"
	"safety_quiz_backend/internal/util"
)

const knowledgeFixture = "限速器\n限速器每年必须进行动作速度校验。\n校验时轿厢应空载并以检修速度运行。\n发现动作速度异常必须立即停梯检修。\n\n" +
	"缓冲器\n液压缓冲器应每月检查油位是否在规定范围。\n缓冲器复位试验应确认柱塞完全复位。\n缓冲器顶面应保持清洁无杂物。\n\n" +
	"门锁\n层门锁紧装置应每月进行啮合深度检查。\n门锁电气触点应可靠接通有效。\n层门关闭后锁钩应完全啮合到位。"

func newTestQuizService(t *testing.T) (*QuizService, string) {
	t.Helper()
	dataDir := t.TempDir()
	storageDir := t.TempDir()

	cfg := &config.Config{}
	cfg.Data.Dir = dataDir
	cfg.Storage.Type = "local"
	cfg.Storage.LocalPath = storageDir

	storedName := "fixture.txt"
	if err := os.WriteFile(filepath.Join(storageDir, storedName), []byte(knowledgeFixture), 0644); err != nil {
		t.Fatal(err)
	}

	storage := &LocalStorageProvider{Config: &cfg.Storage}
	docs := NewDocumentService(storage)
	aiRepo := repository.NewAIConfigRepository(dataDir)
	ai := NewAIService(config.AIConfig{}, aiRepo)
	history := repository.NewHistoryRepository(dataDir)
	wrong := repository.NewWrongQuestionRepository(dataDir)
	sessions := repository.NewSessionRepository(dataDir)

	return NewQuizService(cfg, docs, ai, history, wrong, sessions), storedName
}

func TestCreateSessionAndAnswerFlow(t *testing.T) {
	svc, storedName := newTestQuizService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, CreateSessionInput{
		Filepath: storedName,
		Types:    []model.QuestionType{model.SingleChoice},
		Count:    2,
		Seed:     42,
		SeedSet:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.TotalCount != 2 {
		t.Fatalf("total = %d, want 2", created.TotalCount)
	}
	if created.AIUsed {
		t.Error("AI should not be used without config")
	}

	view, err := svc.CurrentQuestion(created.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if view.Finished || view.Question == nil {
		t.Fatalf("view = %+v", view)
	}
	if view.CurrentIndex != 1 {
		t.Errorf("current index = %d", view.CurrentIndex)
	}

	// 用正确选项作答
	question := view.Question
	correctLetter := string(rune('A' + question.CorrectOptions[0]))
	result, err := svc.SubmitAnswer(ctx, created.SessionID, correctLetter)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsCorrect {
		t.Errorf("correct letter %q graded wrong", correctLetter)
	}
	if !result.NextAvailable {
		t.Error("one question should remain")
	}

	// 第二题答错
	view2, err := svc.CurrentQuestion(created.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	wrongIdx := 0
	if view2.Question.CorrectOptions[0] == 0 {
		wrongIdx = 1
	}
	result2, err := svc.SubmitAnswer(ctx, created.SessionID, string(rune('A'+wrongIdx)))
	if err != nil {
		t.Fatal(err)
	}
	if result2.IsCorrect {
		t.Error("wrong letter graded correct")
	}
	if result2.NextAvailable {
		t.Error("session should be finished")
	}

	status, err := svc.Status(created.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Finished || status.CorrectCount != 1 {
		t.Errorf("status = %+v", status)
	}

	// 答完后继续提交报错
	if _, err := svc.SubmitAnswer(ctx, created.SessionID, "A"); !errors.Is(err, util.ErrSessionFinished) {
		t.Errorf("err = %v, want ErrSessionFinished", err)
	}

	// 答错的题进入错题本
	if len(svc.Wrong.Questions()) != 1 {
		t.Errorf("wrong book = %v", svc.Wrong.Questions())
	}

	// 历史记录两条
	_, pagination, err := svc.History.Query(repository.HistoryQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if pagination.Total != 2 {
		t.Errorf("history total = %d", pagination.Total)
	}
}

func TestConcurrentSubmitAcrossSessions(t *testing.T) {
	svc, storedName := newTestQuizService(t)
	ctx := context.Background()

	// 多个会话并发提交时，持久化快照与其他会话的状态推进同时发生
	const sessionCount = 6
	ids := make([]string, 0, sessionCount)
	for i := 0; i < sessionCount; i++ {
		created, err := svc.CreateSession(ctx, CreateSessionInput{
			Filepath: storedName,
			Types:    []model.QuestionType{model.SingleChoice},
			Count:    3,
			Seed:     int64(i + 1),
			SeedSet:  true,
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, created.SessionID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			for {
				result, err := svc.SubmitAnswer(ctx, sessionID, "A")
				if err != nil {
					t.Errorf("session %s: %v", sessionID, err)
					return
				}
				if !result.NextAvailable {
					return
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		status, err := svc.Status(id)
		if err != nil {
			t.Fatal(err)
		}
		if !status.Finished || status.CurrentIndex != 3 {
			t.Errorf("session %s status = %+v", id, status)
		}
	}

	// 落盘的快照与内存状态一致
	restored := svc.Sessions.LoadAll()
	if len(restored) != sessionCount {
		t.Fatalf("persisted sessions = %d, want %d", len(restored), sessionCount)
	}
	for id, session := range restored {
		if len(session.Answers) != 3 || session.CurrentIndex != 3 {
			t.Errorf("persisted session %s = %+v", id, session)
		}
	}
}

func TestCreateSessionUnknownFile(t *testing.T) {
	svc, _ := newTestQuizService(t)
	_, err := svc.CreateSession(context.Background(), CreateSessionInput{Filepath: "missing.txt"})
	if !errors.Is(err, util.ErrKnowledgeFileExists) {
		t.Errorf("err = %v", err)
	}
}

func TestCreateSessionUnknownSessionLookup(t *testing.T) {
	svc, _ := newTestQuizService(t)
	if _, err := svc.CurrentQuestion("nope"); !errors.Is(err, util.ErrSessionNotFound) {
		t.Errorf("err = %v", err)
	}
	if _, err := svc.Status("nope"); !errors.Is(err, util.ErrSessionNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestSessionsPersistAcrossRestart(t *testing.T) {
	svc, storedName := newTestQuizService(t)
	ctx := context.Background()
	created, err := svc.CreateSession(ctx, CreateSessionInput{Filepath: storedName, Count: 3, Seed: 1, SeedSet: true})
	if err != nil {
		t.Fatal(err)
	}

	// 用同一数据目录重建服务，会话应恢复
	restarted := NewQuizService(svc.Config, svc.Docs, svc.AI, svc.History, svc.Wrong, svc.Sessions)
	status, err := restarted.Status(created.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if status.TotalCount != created.TotalCount {
		t.Errorf("restored total = %d, want %d", status.TotalCount, created.TotalCount)
	}
}

func TestPracticeSessionFromWrongBook(t *testing.T) {
	svc, _ := newTestQuizService(t)

	if _, err := svc.CreatePracticeSession(nil, 0, ""); !errors.Is(err, util.ErrNoWrongQuestions) {
		t.Errorf("err = %v, want ErrNoWrongQuestions", err)
	}

	svc.Wrong.Upsert(&model.Question{
		Identifier:   "限速器-CZ-1",
		QuestionType: model.Cloze,
		Prompt:       "填空题：每____校验一次。",
		AnswerText:   "年",
	}, "错")
	svc.Wrong.Upsert(&model.Question{
		Identifier:   "门锁-QA-1",
		QuestionType: model.QA,
		Prompt:       "概述门锁要求。",
		AnswerText:   "每月检查",
	}, "错")

	created, err := svc.CreatePracticeSession(nil, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if created.TotalCount != 2 || created.Mode != "wrong_question_practice" {
		t.Errorf("created = %+v", created)
	}

	// 题型过滤
	clozeOnly, err := svc.CreatePracticeSession([]model.QuestionType{model.Cloze}, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if clozeOnly.TotalCount != 1 {
		t.Errorf("cloze filter total = %d", clozeOnly.TotalCount)
	}

	// 不匹配的题型过滤报无错题
	if _, err := svc.CreatePracticeSession([]model.QuestionType{model.SingleChoice}, 0, ""); !errors.Is(err, util.ErrNoWrongQuestions) {
		t.Errorf("err = %v", err)
	}
}

func TestPracticeAnswerRemovesFromWrongBook(t *testing.T) {
	svc, _ := newTestQuizService(t)
	ctx := context.Background()

	svc.Wrong.Upsert(&model.Question{
		Identifier:   "限速器-CZ-1",
		QuestionType: model.Cloze,
		Prompt:       "填空题：每____校验一次。",
		AnswerText:   "年",
	}, "错")

	created, err := svc.CreatePracticeSession(nil, 0, "sequential")
	if err != nil {
		t.Fatal(err)
	}
	result, err := svc.SubmitAnswer(ctx, created.SessionID, "年")
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsCorrect {
		t.Fatalf("result = %+v", result)
	}
	if len(svc.Wrong.Questions()) != 0 {
		t.Error("correct answer should remove question from wrong book")
	}
}

func TestResetDataPreservesAIConfig(t *testing.T) {
	svc, storedName := newTestQuizService(t)
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, CreateSessionInput{Filepath: storedName, Count: 1, Seed: 1, SeedSet: true}); err != nil {
		t.Fatal(err)
	}
	svc.Wrong.Upsert(&model.Question{Identifier: "门锁-CZ-1", QuestionType: model.Cloze, AnswerText: "x"}, "错")

	aiCfg := &model.AIEndpointConfig{URL: "https://api.example.com", Key: "k", Model: "m"}
	if err := svc.AI.Repo.Save(aiCfg); err != nil {
		t.Fatal(err)
	}

	if err := svc.ResetData(ctx); err != nil {
		t.Fatal(err)
	}

	if len(svc.Wrong.Questions()) != 0 {
		t.Error("wrong book should be empty")
	}
	if _, err := svc.CurrentQuestion("anything"); !errors.Is(err, util.ErrSessionNotFound) {
		t.Error("sessions should be cleared")
	}
	if _, err := svc.Docs.LoadEntries(ctx, storedName); err == nil {
		t.Error("uploads should be purged")
	}

	restored, err := svc.AI.Repo.Load()
	if err != nil || restored == nil || restored.Model != "m" {
		t.Errorf("AI config should survive reset: %+v, %v", restored, err)
	}
}
