package statefile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReturnsNilWhenAbsent(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "config.json"))
	record, err := store.Load()
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if record != nil {
		t.Fatalf("文件不存在时应返回 nil 记录: %+v", record)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "scripts", "config.json"))

	saved := DeploymentRecord{
		GovernanceProgramID: "Gov111",
		MembershipProgramID: "Mem222",
		GovernanceAccount:   "GovAcc",
		MembershipAccount:   "MemAcc",
		ExecAIAccount:       "ExecAcc",
		Network:             "devnet",
		LastUpdated:         time.Date(2026, 8, 23, 10, 30, 45, 987654321, time.UTC),
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if loaded == nil {
		t.Fatal("记录应当存在")
	}
	if loaded.GovernanceProgramID != saved.GovernanceProgramID ||
		loaded.MembershipProgramID != saved.MembershipProgramID ||
		loaded.Network != saved.Network {
		t.Fatalf("往返不一致: %+v", loaded)
	}
	// 时间戳截断到秒，往返后不带亚秒部分。
	want := saved.LastUpdated.Truncate(time.Second)
	if !loaded.LastUpdated.Equal(want) {
		t.Fatalf("last_updated = %v, want %v", loaded.LastUpdated, want)
	}
}

func TestSaveFillsTimestampAndUsesStableKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store := NewStore(path)

	if err := store.Save(DeploymentRecord{Network: "devnet"}); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取文件失败: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		t.Fatalf("解析文件失败: %v", err)
	}
	for _, key := range []string{
		"governance_program_id", "membership_program_id",
		"governance_account", "membership_account", "execai_account",
		"network", "last_updated",
	} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("缺少字段 %q: %v", key, raw)
		}
	}
	if raw["last_updated"] == "" {
		t.Fatal("零值时间戳应被填充")
	}
}
