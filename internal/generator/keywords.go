package generator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"safety_quiz_backend/internal/model"
)

// DefaultNumericUnits 数值型关键词识别的默认单位白名单。
// 白名单是启发式的，可经配置扩展（如 "kg"、"mm"）。
var DefaultNumericUnits = []string{"m/s", "年", "次"}

// 过于泛化、不适合作为考点的高频词
var stopwords = map[string]bool{
	"检查": true, "调整": true, "复位": true, "确认": true, "确保": true,
	"进行": true, "必须": true, "开关": true, "动作": true, "试验": true,
	"功能": true, "工作": true, "安全": true, "装置": true, "电梯": true,
	"设备": true,
}

var cjkSpanRe = regexp.MustCompile(`[\x{4e00}-\x{9fa5}]{2,4}`)

// KeywordExtractor 负责挖空与关键词提取，数值单位白名单可配置
type KeywordExtractor struct {
	numericRe *regexp.Regexp
}

// NewKeywordExtractor units 为空时使用 DefaultNumericUnits
func NewKeywordExtractor(units []string) *KeywordExtractor {
	if len(units) == 0 {
		units = DefaultNumericUnits
	}
	parts := []string{`\d+(?:\.\d+)?%?`}
	for _, unit := range units {
		parts = append(parts, `\d+`+regexp.QuoteMeta(unit))
	}
	return &KeywordExtractor{numericRe: regexp.MustCompile(strings.Join(parts, "|"))}
}

// MakeCloze 按优先级挖空：数值/计量词 > 部件名 > 首个非停用词的2~4字中文词。
// 三种策略都失败时返回 ok=false。
func (e *KeywordExtractor) MakeCloze(sentence, component string) (blanked, answer string, ok bool) {
	sentence = strings.TrimSpace(sentence)
	if loc := e.numericRe.FindStringIndex(sentence); loc != nil {
		answer = sentence[loc[0]:loc[1]]
		return sentence[:loc[0]] + blankMarker + sentence[loc[1]:], answer, true
	}
	if component != "" && strings.Contains(sentence, component) {
		return strings.Replace(sentence, component, blankMarker, 1), component, true
	}
	for _, word := range cjkSpanRe.FindAllString(sentence, -1) {
		if stopwords[word] {
			continue
		}
		return strings.Replace(sentence, word, blankMarker, 1), word, true
	}
	return "", "", false
}

// Extract 提取问答题关键词：数值词 + 中文词（去停用词/部件名/重复），
// 部件名置于首位，总数不超过8个。
func (e *KeywordExtractor) Extract(entry model.KnowledgeEntry) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, token := range e.numericRe.FindAllString(entry.RawText, -1) {
		if seen[token] {
			continue
		}
		seen[token] = true
		keywords = append(keywords, token)
	}
	for _, word := range cjkSpanRe.FindAllString(entry.RawText, -1) {
		if len(keywords) >= maxKeywords {
			break
		}
		if stopwords[word] || word == entry.Component || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}
	if !seen[entry.Component] && entry.Component != "" {
		keywords = append([]string{entry.Component}, keywords...)
	}
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

// Tokens 从任意文本提取候选关键词（数值词 + 中文词，去重保序）
func (e *KeywordExtractor) Tokens(text string) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, token := range e.numericRe.FindAllString(text, -1) {
		if !seen[token] {
			seen[token] = true
			tokens = append(tokens, token)
		}
	}
	for _, word := range cjkSpanRe.FindAllString(text, -1) {
		if !seen[word] {
			seen[word] = true
			tokens = append(tokens, word)
		}
	}
	return tokens
}

func trimSpace(s string) string { return strings.TrimSpace(s) }

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// joinSentences 参考答案句之间用中文分号连接
func joinSentences(sentences []string) string {
	return strings.Join(sentences, "；")
}
