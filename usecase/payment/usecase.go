package usecase

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/log"

	"nftmarketplace-onchain/gateway/contract"
	"nftmarketplace-onchain/gateway/payment"
	"nftmarketplace-onchain/model"
)

// PaymentUsecase は支払い (ETH残高・ERC-20許可) に関するビジネスロジックを定義
type PaymentUsecase interface {
	// GetBalances はアカウントのETHとトークンの残高を返す
	GetBalances(ctx context.Context, account string) (*model.Balances, error)

	// GetAllowance は owner がマーケットプレイスに許可しているトークン量を返す
	GetAllowance(ctx context.Context, owner string) (*big.Int, error)

	// Approve はマーケットプレイスにトークンの使用を許可する
	Approve(ctx context.Context, amount *big.Int) (*model.CallResult, error)

	// EnsureAllowance は送信者の許可量が amount に満たなければ approve する
	EnsureAllowance(ctx context.Context, amount *big.Int) error
}

type paymentUsecase struct {
	gw          gateway.PaymentGateway
	sender      string // 署名アカウント
	marketplace string // spender になるマーケットプレイスのアドレス
}

func NewPaymentUsecase(gw gateway.PaymentGateway, sender string, marketplace string) *paymentUsecase {
	return &paymentUsecase{
		gw:          gw,
		sender:      sender,
		marketplace: marketplace,
	}
}

func (uc *paymentUsecase) GetBalances(ctx context.Context, account string) (*model.Balances, error) {
	if account == "" {
		account = uc.sender
	}
	native, err := uc.gw.GetNativeBalance(ctx, account)
	if err != nil {
		return nil, err
	}
	balances := &model.Balances{
		Account:   account,
		NativeWei: native.String(),
		NativeEth: contract.FormatEther(native),
	}

	if token := uc.gw.GetTokenAddress(); token != "" {
		tokenBalance, err := uc.gw.GetTokenBalance(ctx, account)
		if err != nil {
			return nil, err
		}
		balances.Token = token
		balances.TokenBalance = tokenBalance.String()
	}
	return balances, nil
}

func (uc *paymentUsecase) GetAllowance(ctx context.Context, owner string) (*big.Int, error) {
	if owner == "" {
		owner = uc.sender
	}
	return uc.gw.GetAllowance(ctx, owner, uc.marketplace)
}

func (uc *paymentUsecase) Approve(ctx context.Context, amount *big.Int) (*model.CallResult, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, model.ConfigError("approve", "amount must be non-negative")
	}
	result, err := uc.gw.Approve(ctx, uc.marketplace, amount)
	if err != nil {
		return nil, err
	}
	log.Info("Approved marketplace to spend payment token", "spender", uc.marketplace, "amount", amount, "tx", result.TxHash)
	return result, nil
}

func (uc *paymentUsecase) EnsureAllowance(ctx context.Context, amount *big.Int) error {
	if uc.sender == "" {
		return errors.New("sender address is unknown; cannot check allowance")
	}
	current, err := uc.GetAllowance(ctx, uc.sender)
	if err != nil {
		return err
	}
	if current.Cmp(amount) >= 0 {
		log.Debug("Token allowance sufficient", "allowance", current, "required", amount)
		return nil
	}
	log.Info("Token allowance insufficient, approving", "allowance", current, "required", amount)
	_, err = uc.Approve(ctx, amount)
	return err
}
