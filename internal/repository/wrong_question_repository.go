package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/util"
)

// WrongQuestionRepository 错题本：单个 JSON 文件，按题目标识符唯一。
// 答错即写入/更新，答对即移除；兼容历史遗留的数组或对象两种载荷格式。
type WrongQuestionRepository struct {
	path string
	mu   sync.Mutex
}

func NewWrongQuestionRepository(dataDir string) *WrongQuestionRepository {
	os.MkdirAll(dataDir, 0755)
	return &WrongQuestionRepository{path: filepath.Join(dataDir, "wrong_questions.json")}
}

// Upsert 记录一次答错：已存在时累加错误次数并刷新时间与解析
func (r *WrongQuestionRepository) Upsert(question *model.Question, lastPlainExplanation string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.loadMapLocked()
	record := entries[question.Identifier]
	record.Question = *question
	record.LastPlainExplanation = lastPlainExplanation
	record.LastWrongAt = util.NowISO()
	record.WrongCount++
	entries[question.Identifier] = record
	return r.writeLocked(entries)
}

// Remove 答对后移除对应错题；不存在时为空操作
func (r *WrongQuestionRepository) Remove(identifier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.loadMapLocked()
	if _, ok := entries[identifier]; !ok {
		return nil
	}
	delete(entries, identifier)
	return r.writeLocked(entries)
}

// Questions 错题的题目快照列表，用于错题复练
func (r *WrongQuestionRepository) Questions() []model.Question {
	records := r.List()
	questions := make([]model.Question, 0, len(records))
	for _, record := range records {
		if record.Question.Identifier == "" {
			continue
		}
		questions = append(questions, record.Question)
	}
	return questions
}

// List 全部错题记录，按最近答错时间倒序
func (r *WrongQuestionRepository) List() []model.WrongQuestionRecord {
	r.mu.Lock()
	entries := r.loadMapLocked()
	r.mu.Unlock()
	records := make([]model.WrongQuestionRecord, 0, len(entries))
	for _, record := range entries {
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].LastWrongAt != records[j].LastWrongAt {
			return records[i].LastWrongAt > records[j].LastWrongAt
		}
		return records[i].Question.Identifier < records[j].Question.Identifier
	})
	return records
}

// Paginated 分页列出错题，支持题型过滤与 last_wrong_at/identifier 排序
func (r *WrongQuestionRepository) Paginated(page, pageSize int, questionType model.QuestionType, sortBy, order string) ([]model.WrongQuestionRecord, model.Pagination) {
	records := r.List()
	if questionType != "" {
		filtered := records[:0]
		for _, record := range records {
			if record.Question.QuestionType == questionType {
				filtered = append(filtered, record)
			}
		}
		records = filtered
	}

	descending := order != "asc"
	switch sortBy {
	case "identifier":
		sort.SliceStable(records, func(i, j int) bool {
			if descending {
				return records[i].Question.Identifier > records[j].Question.Identifier
			}
			return records[i].Question.Identifier < records[j].Question.Identifier
		})
	default: // last_wrong_at
		sort.SliceStable(records, func(i, j int) bool {
			if descending {
				return records[i].LastWrongAt > records[j].LastWrongAt
			}
			return records[i].LastWrongAt < records[j].LastWrongAt
		})
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	total := len(records)
	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	var pageRecords []model.WrongQuestionRecord
	if start < total {
		if end > total {
			end = total
		}
		pageRecords = records[start:end]
	}
	if pageRecords == nil {
		pageRecords = []model.WrongQuestionRecord{}
	}
	return pageRecords, model.Pagination{Total: total, Page: page, PageSize: pageSize, TotalPages: totalPages}
}

// Stats 错题统计：总数、按题型、按部件前缀取前5个薄弱点
func (r *WrongQuestionRepository) Stats() model.WrongQuestionStats {
	records := r.List()
	byType := make(map[string]int)
	topics := make(map[string]int)
	for _, record := range records {
		byType[string(record.Question.QuestionType)]++
		topics[record.Question.Component()]++
	}
	weakest := make([]model.TopicCount, 0, len(topics))
	for topic, count := range topics {
		weakest = append(weakest, model.TopicCount{Topic: topic, Count: count})
	}
	sort.SliceStable(weakest, func(i, j int) bool {
		if weakest[i].Count != weakest[j].Count {
			return weakest[i].Count > weakest[j].Count
		}
		return weakest[i].Topic < weakest[j].Topic
	})
	if len(weakest) > 5 {
		weakest = weakest[:5]
	}
	return model.WrongQuestionStats{
		TotalWrong:    len(records),
		ByType:        byType,
		WeakestTopics: weakest,
	}
}

// Detail 按标识符取单条错题
func (r *WrongQuestionRepository) Detail(identifier string) (model.WrongQuestionRecord, bool) {
	r.mu.Lock()
	entries := r.loadMapLocked()
	r.mu.Unlock()
	record, ok := entries[identifier]
	return record, ok
}

// ClearAll 清空错题本，返回删除数量
func (r *WrongQuestionRepository) ClearAll() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.loadMapLocked()
	count := len(entries)
	err := os.Remove(r.path)
	if os.IsNotExist(err) {
		err = nil
	}
	return count, err
}

// loadMapLocked 读取错题文件。损坏或缺失的文件按空集处理；
// 数组与 id 为键的对象两种格式都接受。
func (r *WrongQuestionRepository) loadMapLocked() map[string]model.WrongQuestionRecord {
	entries := make(map[string]model.WrongQuestionRecord)
	data, err := os.ReadFile(r.path)
	if err != nil {
		return entries
	}
	var asList []model.WrongQuestionRecord
	if err := json.Unmarshal(data, &asList); err == nil {
		for _, record := range asList {
			if record.Question.Identifier != "" {
				entries[record.Question.Identifier] = record
			}
		}
		return entries
	}
	var asMap map[string]model.WrongQuestionRecord
	if err := json.Unmarshal(data, &asMap); err == nil {
		for identifier, record := range asMap {
			if record.Question.Identifier == "" {
				record.Question.Identifier = identifier
			}
			entries[record.Question.Identifier] = record
		}
	}
	return entries
}

func (r *WrongQuestionRepository) writeLocked(entries map[string]model.WrongQuestionRecord) error {
	if len(entries) == 0 {
		err := os.Remove(r.path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	records := make([]model.WrongQuestionRecord, 0, len(entries))
	for _, record := range entries {
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Question.Identifier < records[j].Question.Identifier
	})
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0644)
}
