package knowledge

import (
	"fmt"
	"regexp"
	"strings"

	"safety_quiz_backend/internal/model"
)

// MaxKnowledgeFileSize 知识文件大小上限（字节），约700KB，保证 AI 请求体可控
const MaxKnowledgeFileSize = 700_000

var (
	blockSplitRe   = regexp.MustCompile(`\n{2,}`)
	sentenceRe     = regexp.MustCompile(`[^。！？；;\n]+[。！？；;]?`)
	bracketLinkRe  = regexp.MustCompile(`\[[^\]]*\]`)
	backtickRe     = regexp.MustCompile("`+")
	literalNlRe    = regexp.MustCompile(`\\n`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	tableHeaderSet = map[string]bool{"部件": true, "知识点": true, "章节": true}
)

// Segment 将已解码的文档文本切分为知识条目。formatHint 为文件扩展名（.md/.txt/.pdf）。
// 任何输入都不会报错：空文本返回一条句子列表为空的兜底条目。
func Segment(text string, formatHint string) []model.KnowledgeEntry {
	if strings.EqualFold(formatHint, ".md") {
		if entries := parseMarkdownTable(text); len(entries) > 0 {
			return entries
		}
	}
	return entriesFromPlainText(text)
}

// SplitSentences 按中英文句末标点拆句，拆不出时整段作为一句
func SplitSentences(text string) []string {
	var sentences []string
	for _, match := range sentenceRe.FindAllString(text, -1) {
		if s := strings.TrimSpace(match); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) > 0 {
		return sentences
	}
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		return []string{trimmed}
	}
	return nil
}

func parseMarkdownTable(text string) []model.KnowledgeEntry {
	var entries []model.KnowledgeEntry
	for _, line := range strings.Split(text, "\n") {
		if !strings.HasPrefix(line, "|") {
			continue
		}
		// 跳过对齐分隔行，如 | :--- | :--- |
		if strings.HasPrefix(strings.TrimSpace(line), "| :") {
			continue
		}
		trimmed := strings.Trim(strings.TrimSpace(line), "|")
		rawParts := strings.Split(trimmed, "|")
		if len(rawParts) < 2 {
			continue
		}
		parts := make([]string, 0, len(rawParts))
		for _, p := range rawParts {
			parts = append(parts, strings.TrimSpace(p))
		}
		component := cleanMarkdown(parts[0])
		if tableHeaderSet[component] {
			continue
		}
		description := cleanMarkdown(strings.Join(parts[1:], " "))
		if description == "" {
			continue
		}
		if component == "" {
			component = "知识点"
		}
		entries = append(entries, model.KnowledgeEntry{
			Component: component,
			RawText:   description,
			Sentences: SplitSentences(description),
		})
	}
	return entries
}

func entriesFromPlainText(text string) []model.KnowledgeEntry {
	var entries []model.KnowledgeEntry
	blockIndex := 0
	for _, block := range blockSplitRe.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		blockIndex++
		var lines []string
		for _, line := range strings.Split(block, "\n") {
			if l := strings.TrimSpace(line); l != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) == 0 {
			continue
		}
		component := lines[0]
		contentLines := lines
		if len(lines) > 1 {
			contentLines = lines[1:]
		}
		rawText := strings.Join(contentLines, " ")
		if len(lines) == 1 {
			// 单行段落：整行就是内容，部件名按位置合成
			rawText = component
			component = fmt.Sprintf("知识点%d", blockIndex)
		}
		entries = append(entries, model.KnowledgeEntry{
			Component: component,
			RawText:   rawText,
			Sentences: SplitSentences(rawText),
		})
	}
	if len(entries) > 0 {
		return entries
	}
	// 兜底：整个文档作为一个知识点
	cleaned := strings.TrimSpace(text)
	return []model.KnowledgeEntry{{
		Component: "知识点1",
		RawText:   cleaned,
		Sentences: SplitSentences(cleaned),
	}}
}

func cleanMarkdown(text string) string {
	cleaned := strings.ReplaceAll(text, "**", "")
	cleaned = bracketLinkRe.ReplaceAllString(cleaned, "")
	cleaned = backtickRe.ReplaceAllString(cleaned, "")
	cleaned = literalNlRe.ReplaceAllString(cleaned, " ")
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
