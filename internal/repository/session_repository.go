package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"safety_quiz_backend/internal/model"
)

// SessionRepository Web 会话快照：单个 JSON 文件，每次变更后整体重写。
// 没有崩溃一致性保证，最后一次成功写入生效。
type SessionRepository struct {
	path string
	mu   sync.Mutex
}

func NewSessionRepository(dataDir string) *SessionRepository {
	os.MkdirAll(dataDir, 0755)
	return &SessionRepository{path: filepath.Join(dataDir, "sessions.json")}
}

// LoadAll 启动时恢复会话；文件缺失或损坏时返回空集
func (r *SessionRepository) LoadAll() map[string]*model.QuizSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make(map[string]*model.QuizSession)
	data, err := os.ReadFile(r.path)
	if err != nil {
		return sessions
	}
	if err := json.Unmarshal(data, &sessions); err != nil {
		return make(map[string]*model.QuizSession)
	}
	return sessions
}

func (r *SessionRepository) SaveAll(sessions map[string]*model.QuizSession) error {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return os.WriteFile(r.path, data, 0644)
}

func (r *SessionRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := os.Remove(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
