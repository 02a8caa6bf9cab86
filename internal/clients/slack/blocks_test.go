package slack

import (
	"strings"
	"testing"
)

func countSections(blocks []Block) int {
	n := 0
	for _, b := range blocks {
		if b.Type == "section" {
			n++
		}
	}
	return n
}

func TestBuildTaskBlocksLayout(t *testing.T) {
	blocks := BuildTaskBlocks("部署新版本", "上线 v2.3.0 到生产环境", "王志明", "🚀 进行中", "高")

	if len(blocks) == 0 {
		t.Fatal("no blocks returned")
	}
	first := blocks[0]
	if first.Type != "header" || first.Text == nil || !strings.Contains(first.Text.Text, "部署新版本") {
		t.Errorf("first block = %+v, expected header containing the title", first)
	}
	last := blocks[len(blocks)-1]
	if last.Type != "context" {
		t.Errorf("last block type = %q, expected context", last.Type)
	}
	if countSections(blocks) != 2 {
		t.Errorf("expected 2 sections (fields + description), got %d", countSections(blocks))
	}

	// 负责人作为第三个字段出现
	var fields []TextObject
	for _, b := range blocks {
		if b.Type == "section" && len(b.Fields) > 0 {
			fields = b.Fields
		}
	}
	if len(fields) != 3 {
		t.Fatalf("fields = %+v, expected 状态/优先级/负责人", fields)
	}
	if !strings.Contains(fields[2].Text, "王志明") {
		t.Errorf("assignee field = %q", fields[2].Text)
	}
}

func TestBuildTaskBlocksOmitsEmptyDescription(t *testing.T) {
	blocks := BuildTaskBlocks("清理日志", "", "", "", "")

	if countSections(blocks) != 1 {
		t.Errorf("expected only the fields section, got %d sections", countSections(blocks))
	}
	for _, b := range blocks {
		if b.Type == "section" && b.Text != nil {
			t.Errorf("unexpected description section: %+v", b)
		}
	}
}

func TestBuildTaskBlocksDefaults(t *testing.T) {
	blocks := BuildTaskBlocks("t", "", "", "", "")

	var fields []TextObject
	for _, b := range blocks {
		if b.Type == "section" {
			fields = b.Fields
		}
	}
	if len(fields) != 2 {
		t.Fatalf("fields = %+v", fields)
	}
	if !strings.Contains(fields[0].Text, "待处理") {
		t.Errorf("status field = %q, expected default 待处理", fields[0].Text)
	}
	if !strings.Contains(fields[1].Text, "普通") {
		t.Errorf("priority field = %q, expected default 普通", fields[1].Text)
	}
}
