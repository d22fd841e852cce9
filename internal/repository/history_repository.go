package repository

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/pkg/logger"

	"go.uber.org/zap"
)

// HistoryRepository 作答历史：追加式 JSONL 文件。
// 每条记录序列化为单行 JSON 并在一次写调用中连同换行符落盘，
// 进程内用互斥锁串行化追加，降低并发交错写坏文件的风险。
type HistoryRepository struct {
	path string
	mu   sync.Mutex
}

func NewHistoryRepository(dataDir string) *HistoryRepository {
	os.MkdirAll(dataDir, 0755)
	return &HistoryRepository{path: filepath.Join(dataDir, "answer_history.jsonl")}
}

// HistoryQuery 历史查询条件，零值字段不参与过滤
type HistoryQuery struct {
	Page         int
	PageSize     int
	SessionID    string
	QuestionType model.QuestionType
	IsCorrect    *bool
	DateFrom     *time.Time
	DateTo       *time.Time
}

func (r *HistoryRepository) Append(record *model.AnswerRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	line := append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(line)
	return err
}

// Query 分页查询作答历史，最新在前。单条损坏的 JSON 行被跳过，不影响整体读取。
func (r *HistoryRepository) Query(q HistoryQuery) ([]model.AnswerRecord, model.Pagination, error) {
	records, err := r.readAll()
	if err != nil {
		return nil, model.Pagination{}, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})

	filtered := records[:0]
	for _, item := range records {
		if q.SessionID != "" && item.SessionID != q.SessionID {
			continue
		}
		if q.QuestionType != "" && item.Question.QuestionType != q.QuestionType {
			continue
		}
		if q.IsCorrect != nil && item.IsCorrect != *q.IsCorrect {
			continue
		}
		if q.DateFrom != nil || q.DateTo != nil {
			ts, err := time.Parse(time.RFC3339, item.Timestamp)
			if err != nil {
				continue
			}
			if q.DateFrom != nil && ts.Before(*q.DateFrom) {
				continue
			}
			if q.DateTo != nil && ts.After(*q.DateTo) {
				continue
			}
		}
		filtered = append(filtered, item)
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	total := len(filtered)
	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	var pageEntries []model.AnswerRecord
	if start < total {
		if end > total {
			end = total
		}
		pageEntries = filtered[start:end]
	}
	if pageEntries == nil {
		pageEntries = []model.AnswerRecord{}
	}
	return pageEntries, model.Pagination{
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// SessionSummaries 按会话聚合的作答摘要，最近活跃的在前
func (r *HistoryRepository) SessionSummaries(limit int) ([]model.SessionSummary, error) {
	records, err := r.readAll()
	if err != nil {
		return nil, err
	}
	summaries := make(map[string]*model.SessionSummary)
	for _, item := range records {
		if item.SessionID == "" {
			continue
		}
		summary, ok := summaries[item.SessionID]
		if !ok {
			summary = &model.SessionSummary{
				SessionID: item.SessionID,
				StartedAt: item.Timestamp,
				LatestAt:  item.Timestamp,
			}
			if item.SessionContext != nil {
				if v, ok := item.SessionContext["knowledge_file"].(string); ok {
					summary.KnowledgeFile = v
				}
				if v, ok := item.SessionContext["mode"].(string); ok {
					summary.Mode = v
				}
			}
			summaries[item.SessionID] = summary
		}
		summary.TotalAnswers++
		if item.IsCorrect {
			summary.CorrectAnswers++
		}
		if item.Timestamp != "" {
			if summary.LatestAt == "" || summary.LatestAt < item.Timestamp {
				summary.LatestAt = item.Timestamp
			}
			if summary.StartedAt == "" || summary.StartedAt > item.Timestamp {
				summary.StartedAt = item.Timestamp
			}
		}
	}

	ordered := make([]model.SessionSummary, 0, len(summaries))
	for _, summary := range summaries {
		if summary.TotalAnswers > 0 {
			summary.Accuracy = float64(summary.CorrectAnswers) / float64(summary.TotalAnswers)
		}
		ordered = append(ordered, *summary)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].LatestAt > ordered[j].LatestAt
	})
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

// Clear 删除整个历史文件
func (r *HistoryRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := os.Remove(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (r *HistoryRepository) readAll() ([]model.AnswerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.Open(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []model.AnswerRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	skipped := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record model.AnswerRecord
		if err := json.Unmarshal(line, &record); err != nil {
			skipped++
			continue
		}
		records = append(records, record)
	}
	if skipped > 0 {
		logger.Log.Warn("skipped corrupt history lines", zap.Int("count", skipped))
	}
	return records, scanner.Err()
}
