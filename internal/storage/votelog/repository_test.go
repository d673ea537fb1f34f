package votelog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileRepositoryAppendAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votes.log")
	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("创建仓库失败: %v", err)
	}
	ctx := context.Background()

	for _, entry := range []Entry{
		{ProposalID: "p1", Decision: "approve", Action: "Voted APPROVE on proposal p1"},
		{ProposalID: "p2", Decision: "reject", Action: "Voted REJECT on proposal p2"},
	} {
		if err := repo.Append(ctx, entry); err != nil {
			t.Fatalf("Append 失败: %v", err)
		}
	}

	entries, err := repo.ListLatest(ctx, 10)
	if err != nil {
		t.Fatalf("ListLatest 失败: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("记录数 = %d, want 2", len(entries))
	}
	// 新记录在前。
	if entries[0].ProposalID != "p2" || entries[1].ProposalID != "p1" {
		t.Fatalf("顺序错误: %+v", entries)
	}
	for _, entry := range entries {
		if entry.ID == "" {
			t.Fatal("缺省 ID 应被自动生成")
		}
		if entry.CreatedAt == 0 {
			t.Fatal("缺省时间戳应被自动填充")
		}
	}

	limited, err := repo.ListLatest(ctx, 1)
	if err != nil {
		t.Fatalf("ListLatest 失败: %v", err)
	}
	if len(limited) != 1 || limited[0].ProposalID != "p2" {
		t.Fatalf("限量查询错误: %+v", limited)
	}
}

func TestFileRepositoryReplaysExistingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votes.log")
	ctx := context.Background()

	first, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("创建仓库失败: %v", err)
	}
	if err := first.Append(ctx, Entry{ProposalID: "p1", Decision: "approve"}); err != nil {
		t.Fatalf("Append 失败: %v", err)
	}

	// 追加一条损坏的行，回放时应被跳过。
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("打开文件失败: %v", err)
	}
	if _, err := file.WriteString("not json\n"); err != nil {
		t.Fatalf("写入损坏行失败: %v", err)
	}
	file.Close()

	second, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("重新打开仓库失败: %v", err)
	}
	entries, err := second.ListLatest(ctx, 10)
	if err != nil {
		t.Fatalf("ListLatest 失败: %v", err)
	}
	if len(entries) != 1 || entries[0].ProposalID != "p1" {
		t.Fatalf("回放结果错误: %+v", entries)
	}
}
