package generator

import (
	"fmt"
	"math/rand"

	"safety_quiz_backend/internal/model"
)

const (
	// 全局句池的最短句长（按 rune 计）
	minPoolSentenceLen = 8
	// 选择题题干/选项的最短句长
	minChoiceSentenceLen = 10
	blankMarker          = "____"
	maxKeywords          = 8
)

type pooledSentence struct {
	component string
	sentence  string
}

// Generator 基于知识条目生成题库。给定相同的条目与种子，两次生成的题目序列完全一致。
type Generator struct {
	entries   []model.KnowledgeEntry
	rng       *rand.Rand
	pool      []pooledSentence
	extractor *KeywordExtractor
}

// Option 生成器可选配置
type Option func(*Generator)

// WithNumericUnits 覆盖填空题识别的数值单位白名单
func WithNumericUnits(units []string) Option {
	return func(g *Generator) {
		g.extractor = NewKeywordExtractor(units)
	}
}

// New 构造生成器。seed 为 0 以外的值时生成结果可复现。
func New(entries []model.KnowledgeEntry, seed int64, opts ...Option) *Generator {
	g := &Generator{
		entries:   entries,
		rng:       rand.New(rand.NewSource(seed)),
		extractor: NewKeywordExtractor(nil),
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, entry := range g.entries {
		for _, sentence := range entry.Sentences {
			normalized := trimSpace(sentence)
			if runeLen(normalized) < minPoolSentenceLen {
				continue
			}
			g.pool = append(g.pool, pooledSentence{component: entry.Component, sentence: normalized})
		}
	}
	return g
}

// BuildSingleChoice 单选题：每个条目取一条正确句，配3条其他部件的干扰句。
// 干扰句不足的条目直接跳过，不报错。
func (g *Generator) BuildSingleChoice() []model.Question {
	var questions []model.Question
	counter := 0
	for _, entry := range g.entries {
		var candidates []string
		for _, s := range entry.Sentences {
			if runeLen(trimSpace(s)) >= minChoiceSentenceLen {
				candidates = append(candidates, trimSpace(s))
			}
		}
		if len(candidates) == 0 {
			continue
		}
		var distractorPool []string
		for _, ps := range g.pool {
			if ps.component != entry.Component {
				distractorPool = append(distractorPool, ps.sentence)
			}
		}
		if len(distractorPool) < 3 {
			continue
		}
		correct := candidates[g.rng.Intn(len(candidates))]
		options := g.sample(distractorPool, 3)
		options = append(options, correct)
		isCorrect := []bool{false, false, false, true}
		g.shuffleOptions(options, isCorrect)
		correctIndex := 0
		for i, ok := range isCorrect {
			if ok {
				correctIndex = i
				break
			}
		}
		counter++
		questions = append(questions, model.Question{
			Identifier:     fmt.Sprintf("%s-SC-%d", entry.Component, counter),
			QuestionType:   model.SingleChoice,
			Prompt:         fmt.Sprintf("关于%s，以下哪项描述是正确的？", entry.Component),
			Options:        options,
			CorrectOptions: []int{correctIndex},
			AnswerText:     correct,
			Explanation:    entry.RawText,
		})
	}
	return questions
}

// BuildMultiChoice 多选题：正确项 min(3, 合格句数)，干扰项来自全局句池（可同部件）。
func (g *Generator) BuildMultiChoice() []model.Question {
	var questions []model.Question
	counter := 0
	for _, entry := range g.entries {
		var sentences []string
		for _, s := range entry.Sentences {
			if runeLen(trimSpace(s)) >= minChoiceSentenceLen {
				sentences = append(sentences, trimSpace(s))
			}
		}
		if len(sentences) < 2 {
			continue
		}
		numCorrect := len(sentences)
		if numCorrect > 3 {
			numCorrect = 3
		}
		correct := g.sample(sentences, numCorrect)
		correctSet := make(map[string]bool, len(correct))
		for _, s := range correct {
			correctSet[s] = true
		}
		var distractorPool []string
		for _, ps := range g.pool {
			if !correctSet[ps.sentence] {
				distractorPool = append(distractorPool, ps.sentence)
			}
		}
		if len(distractorPool) < 2 {
			continue
		}
		numDistractors := 5 - numCorrect
		if numDistractors < 2 {
			numDistractors = 2
		}
		if numDistractors > len(distractorPool) {
			numDistractors = len(distractorPool)
		}
		distractors := g.sample(distractorPool, numDistractors)

		options := make([]string, 0, numCorrect+numDistractors)
		isCorrect := make([]bool, 0, numCorrect+numDistractors)
		for _, s := range correct {
			options = append(options, s)
			isCorrect = append(isCorrect, true)
		}
		for _, s := range distractors {
			options = append(options, s)
			isCorrect = append(isCorrect, false)
		}
		g.shuffleOptions(options, isCorrect)
		var correctIndices []int
		for i, ok := range isCorrect {
			if ok {
				correctIndices = append(correctIndices, i)
			}
		}
		counter++
		questions = append(questions, model.Question{
			Identifier:     fmt.Sprintf("%s-MC-%d", entry.Component, counter),
			QuestionType:   model.MultiChoice,
			Prompt:         fmt.Sprintf("关于%s，以下哪些描述是正确的？（多选）", entry.Component),
			Options:        options,
			CorrectOptions: correctIndices,
			AnswerText:     joinSentences(correct),
			Explanation:    entry.RawText,
		})
	}
	return questions
}

// BuildCloze 填空题：每个条目最多出一题，取第一条可成功挖空的句子。
func (g *Generator) BuildCloze() []model.Question {
	var questions []model.Question
	counter := 0
	for _, entry := range g.entries {
		for _, sentence := range entry.Sentences {
			blanked, answer, ok := g.extractor.MakeCloze(sentence, entry.Component)
			if !ok {
				continue
			}
			counter++
			questions = append(questions, model.Question{
				Identifier:   fmt.Sprintf("%s-CZ-%d", entry.Component, counter),
				QuestionType: model.Cloze,
				Prompt:       "填空题：" + blanked,
				AnswerText:   answer,
				Explanation:  trimSpace(sentence),
			})
			break
		}
	}
	return questions
}

// BuildOpenEnded 问答题：每个条目无条件出一题，参考答案取前3句。
func (g *Generator) BuildOpenEnded() []model.Question {
	var questions []model.Question
	counter := 0
	for _, entry := range g.entries {
		reference := entry.Sentences
		if len(reference) > 3 {
			reference = reference[:3]
		}
		counter++
		questions = append(questions, model.Question{
			Identifier:   fmt.Sprintf("%s-QA-%d", entry.Component, counter),
			QuestionType: model.QA,
			Prompt:       fmt.Sprintf("问答题：请概述%s的关键检查或操作要求。", entry.Component),
			AnswerText:   joinSentences(reference),
			Explanation:  entry.RawText,
			Keywords:     g.extractor.Extract(entry),
		})
	}
	return questions
}

// BuildQuestionBank 按单选、多选、填空、问答的固定顺序拼接，不做跨题型去重
func (g *Generator) BuildQuestionBank() []model.Question {
	var bank []model.Question
	bank = append(bank, g.BuildSingleChoice()...)
	bank = append(bank, g.BuildMultiChoice()...)
	bank = append(bank, g.BuildCloze()...)
	bank = append(bank, g.BuildOpenEnded()...)
	return bank
}

// BuildByTypes 仅生成指定题型，保持固定题型顺序
func (g *Generator) BuildByTypes(types []model.QuestionType) []model.Question {
	wanted := make(map[model.QuestionType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	if len(wanted) == 0 {
		return g.BuildQuestionBank()
	}
	var bank []model.Question
	if wanted[model.SingleChoice] {
		bank = append(bank, g.BuildSingleChoice()...)
	}
	if wanted[model.MultiChoice] {
		bank = append(bank, g.BuildMultiChoice()...)
	}
	if wanted[model.Cloze] {
		bank = append(bank, g.BuildCloze()...)
	}
	if wanted[model.QA] {
		bank = append(bank, g.BuildOpenEnded()...)
	}
	return bank
}

// sample 不放回抽样，不修改原切片
func (g *Generator) sample(pool []string, n int) []string {
	indices := g.rng.Perm(len(pool))[:n]
	out := make([]string, 0, n)
	for _, idx := range indices {
		out = append(out, pool[idx])
	}
	return out
}

// shuffleOptions 同步打乱选项与正确性标记，保证乱序后索引仍然精确
func (g *Generator) shuffleOptions(options []string, isCorrect []bool) {
	g.rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
		isCorrect[i], isCorrect[j] = isCorrect[j], isCorrect[i]
	})
}
