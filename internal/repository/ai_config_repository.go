package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"safety_quiz_backend/internal/model"
)

// AIConfigRepository 运行时 AI 配置：data 目录下的单个 JSON 文件。
// 文件存在时覆盖配置文件中的默认接入参数。
type AIConfigRepository struct {
	path string
	mu   sync.Mutex
}

func NewAIConfigRepository(dataDir string) *AIConfigRepository {
	os.MkdirAll(dataDir, 0755)
	return &AIConfigRepository{path: filepath.Join(dataDir, "ai_config.json")}
}

// Load 读取已保存的配置；未保存时返回 (nil, nil)
func (r *AIConfigRepository) Load() (*model.AIEndpointConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg model.AIEndpointConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 45
	}
	return &cfg, nil
}

func (r *AIConfigRepository) Save(cfg *model.AIEndpointConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return os.WriteFile(r.path, data, 0600)
}

// Delete 删除已保存的配置，返回是否确有删除
func (r *AIConfigRepository) Delete() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := os.Remove(r.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
