package solana

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadNetworkDefinitionsFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	content := `networks:
  devnet:
    url: https://rpc.example.com
    unit: SOL
    airdrop_amount: 5
  mainnet:
    url: https://mainnet.example.com
    unit: SOL
    production: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入定义文件失败: %v", err)
	}

	defs, err := LoadNetworkDefinitions(path)
	if err != nil {
		t.Fatalf("LoadNetworkDefinitions 失败: %v", err)
	}

	devnet, err := defs.Lookup("devnet")
	if err != nil {
		t.Fatalf("Lookup devnet 失败: %v", err)
	}
	if devnet.URL != "https://rpc.example.com" {
		t.Fatalf("devnet url = %q", devnet.URL)
	}
	if devnet.AirdropAmount != 5 {
		t.Fatalf("devnet airdrop_amount = %v, want 5", devnet.AirdropAmount)
	}

	mainnet, err := defs.Lookup("mainnet")
	if err != nil {
		t.Fatalf("Lookup mainnet 失败: %v", err)
	}
	if !mainnet.Production {
		t.Fatal("mainnet 应当标记为 production")
	}
}

func TestLookupFallsBackToBuiltins(t *testing.T) {
	defs, err := LoadNetworkDefinitions("")
	if err != nil {
		t.Fatalf("空路径加载失败: %v", err)
	}

	testnet, err := defs.Lookup("testnet")
	if err != nil {
		t.Fatalf("Lookup testnet 失败: %v", err)
	}
	if testnet.URL == "" || testnet.Unit != "SOL" {
		t.Fatalf("内置 testnet 定义不完整: %+v", testnet)
	}

	if _, err := defs.Lookup("localnet"); err == nil {
		t.Fatal("未知网络应当返回错误")
	}
}
