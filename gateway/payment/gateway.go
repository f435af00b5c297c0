package gateway

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"nftmarketplace-onchain/gateway/contract"
	"nftmarketplace-onchain/model"
)

// ===============================================
// 1. インターフェース定義
// ===============================================

type PaymentGateway interface {
	// GetNativeBalance はアカウントのETH残高 (Wei) を返す
	GetNativeBalance(ctx context.Context, account string) (*big.Int, error)

	// GetTokenBalance は支払いトークンの残高を返す
	GetTokenBalance(ctx context.Context, account string) (*big.Int, error)

	// GetAllowance は owner が spender に許可しているトークン量を返す
	GetAllowance(ctx context.Context, owner string, spender string) (*big.Int, error)

	// Approve は spender にトークンの使用を許可し、確定まで待つ
	Approve(ctx context.Context, spender string, amount *big.Int) (*model.CallResult, error)

	// GetTokenAddress は支払いトークンのアドレスを返す (未設定なら空)
	GetTokenAddress() string
}

// BalanceReader はETH残高の取得に使うノードAPI
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ===============================================
// 2. 実装: EthPaymentGateway
// ===============================================

type EthPaymentGateway struct {
	client BalanceReader
	token  contract.ContractGateway // ERC-20 ディスクリプタで作ったゲートウェイ。nil なら未設定
}

// NewEthPaymentGateway は ethclient.Client とERC-20ゲートウェイを受け取る
func NewEthPaymentGateway(client BalanceReader, token contract.ContractGateway) *EthPaymentGateway {
	return &EthPaymentGateway{
		client: client,
		token:  token,
	}
}

func (g *EthPaymentGateway) GetTokenAddress() string {
	if g.token == nil {
		return ""
	}
	return g.token.GetContractAddress()
}

func (g *EthPaymentGateway) GetNativeBalance(ctx context.Context, account string) (*big.Int, error) {
	addr, err := parseAddress("balance", account)
	if err != nil {
		return nil, err
	}
	balance, err := g.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("get balance of %s: %w", addr.Hex(), err)
	}
	return balance, nil
}

func (g *EthPaymentGateway) GetTokenBalance(ctx context.Context, account string) (*big.Int, error) {
	if g.token == nil {
		return nil, errNoToken("balanceOf")
	}
	addr, err := parseAddress("balanceOf", account)
	if err != nil {
		return nil, err
	}
	out, err := g.token.Query(ctx, "balanceOf", addr)
	if err != nil {
		return nil, err
	}
	return firstBigInt("balanceOf", out)
}

func (g *EthPaymentGateway) GetAllowance(ctx context.Context, owner string, spender string) (*big.Int, error) {
	if g.token == nil {
		return nil, errNoToken("allowance")
	}
	ownerAddr, err := parseAddress("allowance", owner)
	if err != nil {
		return nil, err
	}
	spenderAddr, err := parseAddress("allowance", spender)
	if err != nil {
		return nil, err
	}
	out, err := g.token.Query(ctx, "allowance", ownerAddr, spenderAddr)
	if err != nil {
		return nil, err
	}
	return firstBigInt("allowance", out)
}

func (g *EthPaymentGateway) Approve(ctx context.Context, spender string, amount *big.Int) (*model.CallResult, error) {
	if g.token == nil {
		return nil, errNoToken("approve")
	}
	return g.token.Execute(ctx, &model.CallRequest{
		Operation: "approve",
		Args:      []interface{}{spender, amount},
	})
}

func parseAddress(op, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, model.ConfigError(op, "invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func errNoToken(op string) error {
	return model.ConfigError(op, "payment token is not configured (PAYMENT_TOKEN_ADDRESS)")
}

func firstBigInt(op string, out []interface{}) (*big.Int, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", op)
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", op, out[0])
	}
	return n, nil
}
