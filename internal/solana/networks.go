package solana

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NetworkDefinitions models the structure of configs/networks.yaml.
type NetworkDefinitions struct {
	Networks map[string]NetworkDefinition `yaml:"networks"`
}

// NetworkDefinition describes a single target network.
type NetworkDefinition struct {
	URL           string  `yaml:"url"`
	Unit          string  `yaml:"unit"`
	AirdropAmount float64 `yaml:"airdrop_amount"`
	Production    bool    `yaml:"production"`
	Description   string  `yaml:"description"`
}

// builtinNetworks 在缺少定义文件时提供默认的网络元数据。
var builtinNetworks = map[string]NetworkDefinition{
	"devnet": {
		URL:           "https://api.devnet.solana.com",
		Unit:          "SOL",
		AirdropAmount: 2,
	},
	"testnet": {
		URL:           "https://api.testnet.solana.com",
		Unit:          "SOL",
		AirdropAmount: 2,
	},
	"mainnet": {
		URL:        "https://api.mainnet-beta.solana.com",
		Unit:       "SOL",
		Production: true,
	},
}

// LoadNetworkDefinitions parses the YAML file containing network metadata.
// An empty path yields the builtin definitions.
func LoadNetworkDefinitions(path string) (NetworkDefinitions, error) {
	defs := NetworkDefinitions{Networks: map[string]NetworkDefinition{}}
	if strings.TrimSpace(path) == "" {
		return defs, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defs, nil
		}
		return NetworkDefinitions{}, fmt.Errorf("读取网络定义失败: %w", err)
	}

	if err := yaml.Unmarshal(content, &defs); err != nil {
		return NetworkDefinitions{}, fmt.Errorf("解析网络定义失败: %w", err)
	}
	if defs.Networks == nil {
		defs.Networks = map[string]NetworkDefinition{}
	}
	return defs, nil
}

// Lookup 返回指定网络的定义，文件未覆盖时回退到内置默认值。
func (d NetworkDefinitions) Lookup(name string) (NetworkDefinition, error) {
	if def, ok := d.Networks[name]; ok {
		if def.Unit == "" {
			def.Unit = "SOL"
		}
		if def.AirdropAmount <= 0 && !def.Production {
			def.AirdropAmount = 2
		}
		return def, nil
	}
	if def, ok := builtinNetworks[name]; ok {
		return def, nil
	}
	return NetworkDefinition{}, fmt.Errorf("未知的网络: %s", name)
}
