package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// CallStatus はコントラクト呼び出しの状態を表す列挙型
type CallStatus string

const (
	StatusSubmitted CallStatus = "SUBMITTED" // 送信済み (ノードが受理)
	StatusPending   CallStatus = "PENDING"   // ブロック取り込み待ち
	StatusConfirmed CallStatus = "CONFIRMED" // 確定 (成功)
	StatusRejected  CallStatus = "REJECTED"  // 確定 (revert)
	StatusFailed    CallStatus = "FAILED"    // 送信失敗
)

// Terminal は終端状態かどうかを返す
func (s CallStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected || s == StatusFailed
}

// ===============================================
// マーケットプレイスコントラクトの操作名
// ===============================================

const (
	OpChangeOwner      = "changeOwner"
	OpChangeFee        = "changeFee"
	OpMarkItemAsSold   = "markItemAsSold"
	OpMarkItemAsUnsold = "markItemAsUnsold"
	OpBlacklistUser    = "blacklistUser"
	OpWhitelistUser    = "whitelistUser"
	OpCreateItem       = "createItem"
	OpBuyWithEth       = "buyWithEth"
	OpBuyWithToken     = "buyWithToken"
)

// CallRequest は1回分の状態変更呼び出し
type CallRequest struct {
	Operation string        `json:"operation"`
	Args      []interface{} `json:"args"`
	Value     *big.Int      `json:"value,omitempty"` // 添付するETH (Wei)。payable関数のみ
}

// PendingCall は送信済みでまだ確定していない呼び出し
type PendingCall struct {
	Operation   string
	TxHash      common.Hash
	Nonce       uint64
	SubmittedAt time.Time
	// Msg はrevert理由を取得するための再実行用メッセージ
	Msg ethereum.CallMsg
}

// CallResult は確定した呼び出しの結果
type CallResult struct {
	Operation   string     `json:"operation"`
	TxHash      string     `json:"tx_hash"`
	Status      CallStatus `json:"status"`
	BlockNumber uint64     `json:"block_number"`
	GasUsed     uint64     `json:"gas_used"`
}

// NewItem は createItem の引数
type NewItem struct {
	ItemId       *big.Int `json:"item_id"`
	PriceInEth   *big.Int `json:"price_in_eth"`   // Wei
	PriceInToken *big.Int `json:"price_in_token"` // トークンの最小単位
	URI          string   `json:"uri"`
	IsUnlimited  bool     `json:"is_unlimited"`
	SaleEndTime  *big.Int `json:"sale_end_time"` // unix秒, 0 は無期限
}

// TxVerification はトランザクション検証結果
type TxVerification struct {
	TxHash         string `json:"tx_hash"`
	Status         string `json:"status"` // "pending", "success", "failed"
	BlockNumber    uint64 `json:"block_number,omitempty"`
	GasUsed        uint64 `json:"gas_used,omitempty"`
	Success        bool   `json:"success"`
	IsContractCall bool   `json:"is_contract_call"`
}

// JournalEntry はローカルに記録した呼び出し履歴
type JournalEntry struct {
	ID          string     `json:"id"`
	Operation   string     `json:"operation"`
	Fingerprint string     `json:"fingerprint"`
	TxHash      string     `json:"tx_hash,omitempty"`
	Status      CallStatus `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Balances はアカウントの残高 (表示用に文字列)
type Balances struct {
	Account      string `json:"account"`
	NativeWei    string `json:"native_wei"`
	NativeEth    string `json:"native_eth"`
	Token        string `json:"token,omitempty"`
	TokenBalance string `json:"token_balance,omitempty"`
}
