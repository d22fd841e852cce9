// @title 安全培训测验系统 API
// @version 1.0
// @description 基于知识文档的安全培训出题与测验服务。

// @host localhost:8080
// @BasePath /api

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"safety_quiz_backend/internal/app"
	"safety_quiz_backend/internal/cli"
	"safety_quiz_backend/internal/config"
	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/repository"
	"safety_quiz_backend/internal/service"
	"safety_quiz_backend/pkg/configwatcher"
	"safety_quiz_backend/pkg/logger"
)

func main() {
	// 命令行参数
	serve := flag.Bool("serve", false, "以 Web 服务方式启动")
	configPath := flag.String("config", "configs", "配置文件目录")
	mode := flag.String("mode", "sequential", "出题顺序：sequential 或 random")
	count := flag.Int("count", 0, "题目数量限制，0 表示不限制")
	typesFlag := flag.String("types", "", "筛选题型，逗号分隔（single,multi,cloze,qa）")
	seed := flag.Int64("seed", 0, "随机数种子")
	enableAI := flag.Bool("enable-ai", false, "加载AI配置，启用AI出题")
	aiQuestions := flag.Int("ai-questions", 0, "额外生成的 AI 题目数量")
	aiTemperature := flag.Float64("ai-temperature", 0.7, "AI 生成题目的 temperature 参数")
	knowledgeFile := flag.String("knowledge-file", "", "知识文件路径，支持 .md/.txt/.pdf")
	reviewWrong := flag.Bool("review-wrong", false, "仅练习历史错题")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *serve {
		application := app.NewApp(cfg)
		defer logger.Log.Sync()
		go configwatcher.WatchConfig(filepath.Join(*configPath, "config.yaml"), application.ApplyConfig)
		application.Run()
		return
	}

	if *mode != "sequential" && *mode != "random" {
		log.Fatalf("未知的出题模式: %s", *mode)
	}
	types, ok := parseTypes(*typesFlag)
	if !ok {
		log.Fatalf("包含无效的题型参数: %s", *typesFlag)
	}

	history := repository.NewHistoryRepository(cfg.Data.Dir)
	wrong := repository.NewWrongQuestionRepository(cfg.Data.Dir)
	aiConfigRepo := repository.NewAIConfigRepository(cfg.Data.Dir)
	aiService := service.NewAIService(cfg.AI, aiConfigRepo)

	runner := cli.NewRunner(os.Stdin, os.Stdout, cfg, history, wrong, aiService)
	opts := cli.Options{
		Mode:          *mode,
		Count:         *count,
		Types:         types,
		Seed:          *seed,
		SeedSet:       flagProvided("seed"),
		EnableAI:      *enableAI,
		AIQuestions:   *aiQuestions,
		AITemperature: *aiTemperature,
		KnowledgeFile: *knowledgeFile,
		ReviewWrong:   *reviewWrong,
	}
	os.Exit(runner.Run(context.Background(), opts))
}

func parseTypes(raw string) ([]model.QuestionType, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	var types []model.QuestionType
	for _, item := range strings.Split(raw, ",") {
		t, ok := model.ParseQuestionType(item)
		if !ok {
			return nil, false
		}
		types = append(types, t)
	}
	return types, true
}

func flagProvided(name string) bool {
	provided := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			provided = true
		}
	})
	return provided
}
