package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"safety_quiz_backend/internal/knowledge"
	"safety_quiz_backend/internal/model"
	"safety_quiz_backend/internal/util"
	"safety_quiz_backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

var allowedKnowledgeExts = map[string]bool{
	".txt": true,
	".md":  true,
	".pdf": true,
}

// UploadResult 上传解析结果，preview 只含前几条供前端确认
type UploadResult struct {
	StoredName string                 `json:"stored_name"`
	EntryCount int                    `json:"entry_count"`
	Preview    []model.KnowledgeEntry `json:"preview"`
}

// DocumentService 知识文档的上传、存取与切分
type DocumentService struct {
	Storage StorageProvider
}

func NewDocumentService(storage StorageProvider) *DocumentService {
	return &DocumentService{Storage: storage}
}

// UploadKnowledge 校验并保存上传的知识文档，返回切分预览。
// 存储名使用随机 UUID，避免覆盖与路径注入。
func (s *DocumentService) UploadKnowledge(ctx context.Context, filename string, reader io.Reader, size int64) (*UploadResult, error) {
	if size > knowledge.MaxKnowledgeFileSize {
		return nil, util.ErrFileTooLarge
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedKnowledgeExts[ext] {
		return nil, util.ErrUnsupportedFormat
	}

	data, err := io.ReadAll(io.LimitReader(reader, knowledge.MaxKnowledgeFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > knowledge.MaxKnowledgeFileSize {
		return nil, util.ErrFileTooLarge
	}

	text, err := extractText(data, ext)
	if err != nil {
		return nil, err
	}
	entries := knowledge.Segment(text, ext)
	if len(entries) == 0 {
		return nil, util.ErrKnowledgeFileEmpty
	}

	storedName := uuid.New().String() + ext
	if _, err := s.Storage.Upload(ctx, storedName, bytes.NewReader(data), int64(len(data)), contentTypeFor(ext)); err != nil {
		return nil, err
	}
	logger.Log.Info("知识文档已上传",
		zap.String("filename", filename),
		zap.String("stored_name", storedName),
		zap.Int("entries", len(entries)))

	return &UploadResult{
		StoredName: storedName,
		EntryCount: len(entries),
		Preview:    previewEntries(entries, 3),
	}, nil
}

// LoadEntries 读取已存储的文档并切分为知识条目
func (s *DocumentService) LoadEntries(ctx context.Context, storedName string) ([]model.KnowledgeEntry, error) {
	rc, err := s.Storage.Fetch(ctx, storedName)
	if err != nil {
		return nil, util.ErrKnowledgeFileExists
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, knowledge.MaxKnowledgeFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > knowledge.MaxKnowledgeFileSize {
		return nil, util.ErrFileTooLarge
	}
	return segmentBytes(data, strings.ToLower(filepath.Ext(storedName)))
}

// LoadEntriesFromFile 从本地路径加载知识文档，供命令行模式使用
func LoadEntriesFromFile(path string) ([]model.KnowledgeEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, util.ErrKnowledgeFileExists
	}
	if info.Size() > knowledge.MaxKnowledgeFileSize {
		return nil, util.ErrFileTooLarge
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedKnowledgeExts[ext] {
		return nil, util.ErrUnsupportedFormat
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return segmentBytes(data, ext)
}

func segmentBytes(data []byte, ext string) ([]model.KnowledgeEntry, error) {
	text, err := extractText(data, ext)
	if err != nil {
		return nil, err
	}
	entries := knowledge.Segment(text, ext)
	if len(entries) == 0 {
		return nil, util.ErrKnowledgeFileEmpty
	}
	return entries, nil
}

func extractText(data []byte, ext string) (string, error) {
	if ext == ".pdf" {
		return extractPDFText(data)
	}
	return string(data), nil
}

// extractPDFText 逐页抽取纯文本，单页失败跳过不中断
func extractPDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("解析 PDF 失败: %w", err)
	}
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Log.Warn("跳过无法解析的 PDF 页", zap.Int("page", i), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func previewEntries(entries []model.KnowledgeEntry, limit int) []model.KnowledgeEntry {
	if len(entries) < limit {
		limit = len(entries)
	}
	preview := make([]model.KnowledgeEntry, 0, limit)
	for _, entry := range entries[:limit] {
		runes := []rune(entry.RawText)
		if len(runes) > 100 {
			entry.RawText = string(runes[:100]) + "..."
		}
		preview = append(preview, entry)
	}
	return preview
}

func contentTypeFor(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown"
	default:
		return "text/plain"
	}
}
