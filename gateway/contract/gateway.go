package contract

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"nftmarketplace-onchain/model"
)

const defaultPollInterval = 2 * time.Second

// ContractGateway はスマートコントラクトへの呼び出しを担当
type ContractGateway interface {
	// Execute は状態変更呼び出しを送信し、確定するまで待つ
	Execute(ctx context.Context, req *model.CallRequest) (*model.CallResult, error)

	// Validate は引数を検証するだけでネットワークには触れない
	Validate(req *model.CallRequest) error

	// Submit は署名済みトランザクションを送信する。受理されただけで実行は保証されない
	Submit(ctx context.Context, req *model.CallRequest) (*model.PendingCall, error)

	// Wait は送信済みの呼び出しが確定 (成功 or revert) するまで待つ
	Wait(ctx context.Context, pending *model.PendingCall) (*model.CallResult, error)

	// Query は読み取り専用関数を eth_call で呼び出し、戻り値をデコードする
	Query(ctx context.Context, operation string, args ...interface{}) ([]interface{}, error)

	// VerifyTransaction はトランザクションを検証
	VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error)

	// GetContractAddress はコントラクトアドレスを返す
	GetContractAddress() string

	// Operations は呼び出し可能な状態変更関数の一覧を返す
	Operations() []string
}

// Options は送信と確定待ちの設定
type Options struct {
	GasLimit       uint64        // 0 ならノードで見積もる
	Confirmations  uint64        // 確定とみなすブロック数 (最小1)
	PollInterval   time.Duration // レシートのポーリング間隔
	ConfirmTimeout time.Duration // 0 なら無制限

	// SubmitLock は同じ鍵を使う複数のゲートウェイで共有する。nil なら個別のロック
	SubmitLock sync.Locker
}

// EthContractGateway はEVMチェーン上のコントラクトとの連携実装
type EthContractGateway struct {
	backend Backend
	desc    *Descriptor
	key     *ecdsa.PrivateKey
	from    common.Address
	opts    Options
	logger  log.Logger

	mu      sync.Locker // 送信を直列化してnonceの重複を防ぐ
	chainID *big.Int
}

// NewEthContractGateway は新しいコントラクトゲートウェイを作成。
// key が nil の場合は Query と VerifyTransaction のみ使える
func NewEthContractGateway(backend Backend, desc *Descriptor, key *ecdsa.PrivateKey, opts Options) (*EthContractGateway, error) {
	if backend == nil {
		return nil, model.ConfigError("gateway", "backend is required")
	}
	if desc == nil {
		return nil, model.ConfigError("gateway", "contract descriptor is required")
	}
	if opts.Confirmations == 0 {
		opts.Confirmations = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	mu := opts.SubmitLock
	if mu == nil {
		mu = new(sync.Mutex)
	}

	g := &EthContractGateway{
		backend: backend,
		desc:    desc,
		key:     key,
		opts:    opts,
		logger:  log.New("contract", desc.Address.Hex()),
		mu:      mu,
	}
	if key != nil {
		g.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return g, nil
}

func (g *EthContractGateway) GetContractAddress() string {
	return g.desc.Address.Hex()
}

func (g *EthContractGateway) Operations() []string {
	return g.desc.Operations()
}

// Sender は署名に使うアカウントのアドレスを返す
func (g *EthContractGateway) Sender() common.Address {
	return g.from
}

// Execute は Submit と Wait を続けて行う
func (g *EthContractGateway) Execute(ctx context.Context, req *model.CallRequest) (*model.CallResult, error) {
	pending, err := g.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return g.Wait(ctx, pending)
}

func (g *EthContractGateway) Validate(req *model.CallRequest) error {
	_, _, err := g.pack(req)
	return err
}

// pack は引数を検証してcalldataを作る。ネットワークには触れない
func (g *EthContractGateway) pack(req *model.CallRequest) ([]byte, *big.Int, error) {
	if req == nil || req.Operation == "" {
		return nil, nil, model.ConfigError("", "operation name is required")
	}
	m, err := g.desc.method(req.Operation, false)
	if err != nil {
		return nil, nil, err
	}
	args, err := normalizeArgs(m.Inputs, req.Args)
	if err != nil {
		return nil, nil, model.ConfigError(req.Operation, "%v", err)
	}

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	if value.Sign() < 0 {
		return nil, nil, model.ConfigError(req.Operation, "negative value %s", value)
	}
	if value.Sign() > 0 && !m.IsPayable() {
		return nil, nil, model.ConfigError(req.Operation, "operation is not payable but value %s wei was attached", value)
	}

	data, err := g.desc.ABI.Pack(m.Name, args...)
	if err != nil {
		return nil, nil, model.ConfigError(req.Operation, "encode arguments: %v", err)
	}
	return data, value, nil
}

func (g *EthContractGateway) Submit(ctx context.Context, req *model.CallRequest) (*model.PendingCall, error) {
	data, value, err := g.pack(req)
	if err != nil {
		return nil, err
	}
	if g.key == nil {
		return nil, model.ConfigError(req.Operation, "no signing credential configured")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	submissionErr := func(step string, err error) error {
		return &model.CallError{
			Kind:      model.ErrSubmission,
			Operation: req.Operation,
			Err:       fmt.Errorf("%s: %w", step, err),
		}
	}

	if g.chainID == nil {
		chainID, err := g.backend.ChainID(ctx)
		if err != nil {
			return nil, submissionErr("chain id", err)
		}
		g.chainID = chainID
	}
	nonce, err := g.backend.PendingNonceAt(ctx, g.from)
	if err != nil {
		return nil, submissionErr("nonce", err)
	}
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, submissionErr("gas price", err)
	}

	to := g.desc.Address
	msg := ethereum.CallMsg{
		From:     g.from,
		To:       &to,
		GasPrice: gasPrice,
		Value:    value,
		Data:     data,
	}
	gas := g.opts.GasLimit
	if gas == 0 {
		gas, err = g.backend.EstimateGas(ctx, msg)
		if err != nil {
			// 見積もり段階でのrevertはコントラクト側の検証による拒否
			if reason, ok := revertReason(err); ok {
				return nil, &model.CallError{
					Kind:      model.ErrExecutionReverted,
					Operation: req.Operation,
					Reason:    reason,
					Err:       err,
				}
			}
			return nil, submissionErr("estimate gas", err)
		}
	}
	msg.Gas = gas

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return nil, submissionErr("sign", err)
	}
	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return nil, submissionErr("send", err)
	}

	g.logger.Debug("Submitted contract call", "operation", req.Operation, "tx", signed.Hash(), "nonce", nonce, "gas", gas, "value", value)
	return &model.PendingCall{
		Operation:   req.Operation,
		TxHash:      signed.Hash(),
		Nonce:       nonce,
		SubmittedAt: time.Now(),
		Msg:         msg,
	}, nil
}

func (g *EthContractGateway) Wait(ctx context.Context, pending *model.PendingCall) (*model.CallResult, error) {
	if g.opts.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.ConfirmTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, pending.TxHash)
		switch {
		case err == nil:
			final, ferr := g.isFinal(ctx, receipt)
			if ferr != nil {
				g.logger.Debug("Failed to read chain head", "tx", pending.TxHash, "err", ferr)
			} else if final {
				return g.settle(ctx, pending, receipt)
			}
		case errors.Is(err, ethereum.NotFound):
			// まだブロックに取り込まれていない
		default:
			if ctx.Err() == nil {
				g.logger.Warn("Receipt lookup failed, polling again", "tx", pending.TxHash, "err", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil, &model.CallError{
				Kind:      model.ErrConfirmationTimeout,
				Operation: pending.Operation,
				TxHash:    pending.TxHash,
				Err:       ctx.Err(),
			}
		case <-ticker.C:
		}
	}
}

// isFinal はレシートのブロックが必要な確認数に達したかを返す
func (g *EthContractGateway) isFinal(ctx context.Context, receipt *types.Receipt) (bool, error) {
	if g.opts.Confirmations <= 1 {
		return true, nil
	}
	head, err := g.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return false, err
	}
	if receipt.BlockNumber == nil || head.Number.Cmp(receipt.BlockNumber) < 0 {
		return false, nil
	}
	depth := new(big.Int).Sub(head.Number, receipt.BlockNumber).Uint64() + 1
	return depth >= g.opts.Confirmations, nil
}

func (g *EthContractGateway) settle(ctx context.Context, pending *model.PendingCall, receipt *types.Receipt) (*model.CallResult, error) {
	var blockNumber uint64
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := g.replayRevert(ctx, pending.Msg, receipt)
		g.logger.Debug("Contract call reverted", "operation", pending.Operation, "tx", pending.TxHash, "block", blockNumber, "reason", reason)
		return nil, &model.CallError{
			Kind:      model.ErrExecutionReverted,
			Operation: pending.Operation,
			TxHash:    pending.TxHash,
			Reason:    reason,
		}
	}

	g.logger.Debug("Contract call confirmed", "operation", pending.Operation, "tx", pending.TxHash, "block", blockNumber, "gasUsed", receipt.GasUsed)
	return &model.CallResult{
		Operation:   pending.Operation,
		TxHash:      pending.TxHash.Hex(),
		Status:      model.StatusConfirmed,
		BlockNumber: blockNumber,
		GasUsed:     receipt.GasUsed,
	}, nil
}

// replayRevert は失敗したトランザクションを同じブロックで再実行してrevert理由を得る
func (g *EthContractGateway) replayRevert(ctx context.Context, msg ethereum.CallMsg, receipt *types.Receipt) string {
	_, err := g.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if err == nil {
		return fmt.Sprintf("transaction failed without revert data (gas used %d of %d)", receipt.GasUsed, msg.Gas)
	}
	if reason, ok := revertReason(err); ok {
		return reason
	}
	return err.Error()
}

// revertReason はノードのエラーがrevertによるものなら理由を返す。
// Error(string) 形式でなければ生のrevertデータをそのまま返す
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw, ok := dataErr.ErrorData().(string); ok && raw != "" {
			if data, derr := hexutil.Decode(raw); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason, true
				}
			}
			return raw, true
		}
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return err.Error(), true
	}
	return "", false
}

func (g *EthContractGateway) Query(ctx context.Context, operation string, args ...interface{}) ([]interface{}, error) {
	m, err := g.desc.method(operation, true)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeArgs(m.Inputs, args)
	if err != nil {
		return nil, model.ConfigError(operation, "%v", err)
	}
	data, err := g.desc.ABI.Pack(m.Name, normalized...)
	if err != nil {
		return nil, model.ConfigError(operation, "encode arguments: %v", err)
	}

	to := g.desc.Address
	msg := ethereum.CallMsg{
		From: g.from,
		To:   &to,
		Data: data,
	}
	result, err := g.backend.CallContract(ctx, msg, nil)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return nil, &model.CallError{Kind: model.ErrExecutionReverted, Operation: operation, Reason: reason, Err: err}
		}
		return nil, &model.CallError{Kind: model.ErrSubmission, Operation: operation, Err: err}
	}

	out, err := g.desc.ABI.Unpack(m.Name, result)
	if err != nil {
		return nil, fmt.Errorf("%s: decode result: %w", operation, err)
	}
	return out, nil
}

// VerifyTransaction はトランザクションを検証
func (g *EthContractGateway) VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error) {
	if _, err := hexutil.Decode(txHash); err != nil || len(txHash) != 66 {
		return nil, model.ConfigError("verify", "invalid transaction hash format")
	}
	txHashObj := common.HexToHash(txHash)

	tx, isPending, err := g.backend.TransactionByHash(ctx, txHashObj)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, &model.CallError{Kind: model.ErrNotFound, Operation: "verify", Err: fmt.Errorf("transaction %s", txHashObj.Hex())}
		}
		return nil, fmt.Errorf("lookup transaction: %w", err)
	}

	verification := &model.TxVerification{TxHash: txHashObj.Hex()}
	// コントラクト呼び出しかどうかを確認
	if tx.To() != nil && *tx.To() == g.desc.Address {
		verification.IsContractCall = true
	}
	if isPending {
		verification.Status = "pending"
		return verification, nil
	}

	receipt, err := g.backend.TransactionReceipt(ctx, txHashObj)
	if err != nil {
		return nil, fmt.Errorf("get transaction receipt: %w", err)
	}
	if receipt.BlockNumber != nil {
		verification.BlockNumber = receipt.BlockNumber.Uint64()
	}
	verification.GasUsed = receipt.GasUsed
	verification.Success = receipt.Status == types.ReceiptStatusSuccessful
	if verification.Success {
		verification.Status = "success"
	} else {
		verification.Status = "failed"
	}
	return verification, nil
}
