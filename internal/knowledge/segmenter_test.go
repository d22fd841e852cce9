package knowledge

import (
	"testing"
)

func TestSegmentMarkdownTable(t *testing.T) {
	text := "# 维护程序\n\n" +
		"| 部件 | 知识点 |\n" +
		"| :--- | :--- |\n" +
		"| 限速器 | 每年进行动作速度校验。发现异常必须停梯检修。 |\n" +
		"| 缓冲器 | 液压缓冲器应检查油位。 |\n"

	entries := Segment(text, ".md")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Component != "限速器" {
		t.Errorf("component = %q, want 限速器", entries[0].Component)
	}
	if len(entries[0].Sentences) != 2 {
		t.Errorf("sentences = %v, want 2 sentences", entries[0].Sentences)
	}
	if entries[1].Component != "缓冲器" {
		t.Errorf("component = %q, want 缓冲器", entries[1].Component)
	}
}

func TestSegmentMarkdownTableSkipsHeaderAndAlignment(t *testing.T) {
	text := "| 知识点 | 内容 |\n| :--- | :--- |\n| 门锁 | 层门锁紧装置每月检查一次。 |\n"
	entries := Segment(text, ".md")
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d: %+v", len(entries), entries)
	}
	if entries[0].Component != "门锁" {
		t.Errorf("component = %q", entries[0].Component)
	}
}

func TestSegmentPlainTextBlocks(t *testing.T) {
	text := "限速器\n每年进行动作速度校验。\n发现异常必须停梯检修。\n\n缓冲器\n液压缓冲器应检查油位。"
	entries := Segment(text, ".txt")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Component != "限速器" {
		t.Errorf("component = %q", entries[0].Component)
	}
	if entries[0].RawText != "每年进行动作速度校验。 发现异常必须停梯检修。" {
		t.Errorf("raw text = %q", entries[0].RawText)
	}
}

func TestSegmentSingleLineBlockSynthesizesComponent(t *testing.T) {
	text := "安全钳联动开关动作后电梯不能运行。\n\n限速器\n每年校验一次。"
	entries := Segment(text, ".txt")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Component != "知识点1" {
		t.Errorf("component = %q, want 知识点1", entries[0].Component)
	}
	if entries[0].RawText != "安全钳联动开关动作后电梯不能运行。" {
		t.Errorf("raw text = %q", entries[0].RawText)
	}
	if entries[1].Component != "限速器" {
		t.Errorf("component = %q", entries[1].Component)
	}
}

func TestSegmentEmptyTextFallback(t *testing.T) {
	entries := Segment("", ".txt")
	if len(entries) != 1 {
		t.Fatalf("expected fallback entry, got %d", len(entries))
	}
	if entries[0].Component != "知识点1" {
		t.Errorf("component = %q", entries[0].Component)
	}
	if len(entries[0].Sentences) != 0 {
		t.Errorf("sentences = %v, want empty", entries[0].Sentences)
	}
}

func TestSplitSentences(t *testing.T) {
	sentences := SplitSentences("先检查门锁。再测试限位开关！最后复位；完成")
	if len(sentences) != 4 {
		t.Fatalf("got %d sentences: %v", len(sentences), sentences)
	}
	if sentences[0] != "先检查门锁。" {
		t.Errorf("first sentence = %q", sentences[0])
	}
	if sentences[3] != "完成" {
		t.Errorf("last sentence = %q", sentences[3])
	}
}

func TestSplitSentencesNoPunctuation(t *testing.T) {
	sentences := SplitSentences("没有标点的一段话")
	if len(sentences) != 1 || sentences[0] != "没有标点的一段话" {
		t.Errorf("got %v", sentences)
	}
}
