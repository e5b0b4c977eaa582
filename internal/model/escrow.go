package model

import "time"

type Escrow struct {
	ID           int       `json:"id"`
	ProjectID    int       `json:"project_id"`
	ContractID   string    `json:"contract_id"`
	Network      string    `json:"network"` // testnet / mainnet
	TokenAddress string    `json:"token_address"`
	AmountBase   int64     `json:"amount_base"` // 已注资总额（最小单位）
	CreatedAt    time.Time `json:"created_at"`
}

// EscrowOwner 托管及其所属用户
type EscrowOwner struct {
	Escrow
	UserID int `json:"user_id"`
}
