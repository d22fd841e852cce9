package model

// AIEndpointConfig 外部 AI 补全接口的接入参数。
// 默认值来自配置文件，可在运行时通过 /api/ai-config 覆盖并持久化。
type AIEndpointConfig struct {
	URL            string  `json:"url"`
	Key            string  `json:"key"`
	Model          string  `json:"model"`
	TimeoutSeconds float64 `json:"timeout"`
	DevDocument    string  `json:"dev_document,omitempty"`
	EnableGrading  bool    `json:"enable_ai_grading"`
}

// Complete 三个必填字段是否齐备
func (c *AIEndpointConfig) Complete() bool {
	return c != nil && c.URL != "" && c.Key != "" && c.Model != ""
}
