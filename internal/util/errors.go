package util

import "errors"

var (
	ErrSessionNotFound     = errors.New("会话不存在")
	ErrSessionFinished     = errors.New("已完成所有题目")
	ErrQuestionBankEmpty   = errors.New("题库为空，无法开始测验")
	ErrKnowledgeFileExists = errors.New("知识文件不存在")
	ErrKnowledgeFileEmpty  = errors.New("知识文件为空")
	ErrFileTooLarge        = errors.New("知识文件过大")
	ErrUnsupportedFormat   = errors.New("仅支持 .txt、.md、.pdf 格式")
	ErrNoWrongQuestions    = errors.New("当前没有错题")
	ErrAIConfigMissing     = errors.New("当前没有已保存的配置")
)
