package model

// KnowledgeEntry 知识条目：一个部件（或知识点）及其描述文本与拆分后的句子。
// 创建后不可变，一条对应源文档中的一个语义单元（表格行或空行分隔的段落）。
type KnowledgeEntry struct {
	Component string   `json:"component"`
	RawText   string   `json:"raw_text"`
	Sentences []string `json:"sentences"`
}
