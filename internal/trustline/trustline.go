package trustline

import (
	"errors"
	"math"
	"strings"
)

var (
	ErrAmountTooSmall   = errors.New("amount rounds to zero base units")
	ErrAmountOutOfRange = errors.New("amount exceeds base unit range")
)

// 2^63，float64 可精确表示；>= 该值的结果无法放进 int64
const baseUnitLimit = float64(1 << 63)

// Network 资产所在网络
type Network string

const (
	Testnet Network = "testnet"
	Mainnet Network = "mainnet"
)

// ParseNetwork 严格解析网络名（大小写不敏感）
func ParseNetwork(s string) (Network, bool) {
	switch Network(strings.ToLower(strings.TrimSpace(s))) {
	case Testnet:
		return Testnet, true
	case Mainnet:
		return Mainnet, true
	}
	return "", false
}

// Token 可用于注资的资产描述
type Token struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Scale   int64   `json:"scale"` // 1 个显示单位 = Scale 个最小单位
	Network Network `json:"network"`
}

// Option 下拉选项
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ToBaseUnits 按固定精度换算为最小单位，四舍五入（远离零）。
// 结果必须落在 (0, MaxInt64] 内，否则返回 ErrAmountTooSmall / ErrAmountOutOfRange。
func (t Token) ToBaseUnits(amount float64) (int64, error) {
	v := math.Round(amount * float64(t.Scale))
	switch {
	case math.IsNaN(v) || v >= baseUnitLimit:
		return 0, ErrAmountOutOfRange
	case v <= 0:
		return 0, ErrAmountTooSmall
	}
	return int64(v), nil
}

// Registry 只读资产目录
type Registry struct {
	tokens []Token
}

// NewRegistry 基于给定目录创建 Registry，目录会被复制
func NewRegistry(tokens []Token) *Registry {
	cp := make([]Token, len(tokens))
	copy(cp, tokens)
	return &Registry{tokens: cp}
}

// Default 内置目录
func Default() *Registry {
	return NewRegistry(catalog)
}

// ListOptions 返回指定网络的选项：按地址去重，保留首次出现的顺序。未知网络返回空切片。
func (r *Registry) ListOptions(network Network) []Option {
	options := make([]Option, 0, 4)
	seen := make(map[string]struct{})
	for _, t := range r.tokens {
		if t.Network != network {
			continue
		}
		if _, ok := seen[t.Address]; ok {
			continue
		}
		seen[t.Address] = struct{}{}
		options = append(options, Option{Value: t.Address, Label: t.Name})
	}
	return options
}

// Lookup 根据网络和地址查找资产
func (r *Registry) Lookup(network Network, address string) (Token, bool) {
	for _, t := range r.tokens {
		if t.Network == network && t.Address == address {
			return t, true
		}
	}
	return Token{}, false
}
