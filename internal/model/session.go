package model

// SessionAnswer 会话内已提交的一条答案
type SessionAnswer struct {
	QuestionID  string `json:"question_id"`
	UserAnswer  string `json:"user_answer"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation"`
}

// QuizSession Web 会话状态：当前进度与累计正确数。
// 并发提交按会话加锁串行化，见 service.QuizService。
type QuizSession struct {
	Questions    []Question      `json:"questions"`
	CurrentIndex int             `json:"current_index"`
	Answers      []SessionAnswer `json:"answers"`
	CorrectCount int             `json:"correct_count"`
	TotalCount   int             `json:"total_count"`
	Filepath     string          `json:"filepath,omitempty"`
	Mode         string          `json:"mode,omitempty"`
}

// Finished 是否已答完全部题目
func (s *QuizSession) Finished() bool {
	return s.CurrentIndex >= len(s.Questions)
}

// Clone 深拷贝会话，供持锁期间生成可安全序列化的快照。
// Question 创建后不可变，元素本身浅拷贝即可。
func (s *QuizSession) Clone() *QuizSession {
	c := *s
	c.Questions = append([]Question(nil), s.Questions...)
	c.Answers = append([]SessionAnswer(nil), s.Answers...)
	return &c
}
