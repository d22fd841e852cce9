package model

// GradeOutcome 判分结果：正误 + 白话解析，Extra 携带审计用的匹配细节
type GradeOutcome struct {
	IsCorrect        bool                   `json:"is_correct"`
	PlainExplanation string                 `json:"plain_explanation"`
	Extra            map[string]interface{} `json:"extra,omitempty"`
}

// AnswerRecord 一次作答的追加式日志条目，写入后不再修改
type AnswerRecord struct {
	Timestamp        string                 `json:"timestamp"`
	SessionID        string                 `json:"session_id"`
	Question         Question               `json:"question"`
	UserAnswer       string                 `json:"user_answer"`
	IsCorrect        bool                   `json:"is_correct"`
	PlainExplanation string                 `json:"plain_explanation"`
	SessionContext   map[string]interface{} `json:"session_context,omitempty"`
	Extra            map[string]interface{} `json:"extra,omitempty"`
}

// WrongQuestionRecord 错题本条目，按题目标识符唯一；答对后整条移除
type WrongQuestionRecord struct {
	Question             Question `json:"question"`
	LastPlainExplanation string   `json:"last_plain_explanation"`
	LastWrongAt          string   `json:"last_wrong_at"`
	WrongCount           int      `json:"wrong_count"`
}

// SessionSummary 按会话聚合的作答摘要
type SessionSummary struct {
	SessionID      string  `json:"session_id"`
	StartedAt      string  `json:"started_at"`
	LatestAt       string  `json:"latest_at"`
	TotalAnswers   int     `json:"total_answers"`
	CorrectAnswers int     `json:"correct_answers"`
	Accuracy       float64 `json:"accuracy"`
	KnowledgeFile  string  `json:"knowledge_file,omitempty"`
	Mode           string  `json:"mode,omitempty"`
}

// WrongQuestionStats 错题统计
type WrongQuestionStats struct {
	TotalWrong    int            `json:"total_wrong"`
	ByType        map[string]int `json:"by_type"`
	WeakestTopics []TopicCount   `json:"weakest_topics"`
}

// TopicCount 按部件聚合的错题数
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// Pagination 分页信息
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}
