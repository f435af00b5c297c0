package usecase

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"nftmarketplace-onchain/gateway/contract"
	"nftmarketplace-onchain/journal"
	"nftmarketplace-onchain/model"
)

// ContractUsecase はマーケットプレイスコントラクトへの操作を定義
type ContractUsecase interface {
	ChangeOwner(ctx context.Context, newOwner string) (*model.CallResult, error)
	ChangeFee(ctx context.Context, newFee *big.Int) (*model.CallResult, error)
	MarkItemAsSold(ctx context.Context, itemId *big.Int) (*model.CallResult, error)
	MarkItemAsUnsold(ctx context.Context, itemId *big.Int) (*model.CallResult, error)
	BlacklistUser(ctx context.Context, user string) (*model.CallResult, error)
	WhitelistUser(ctx context.Context, user string) (*model.CallResult, error)
	CreateItem(ctx context.Context, item *model.NewItem) (*model.CallResult, error)
	BuyWithEth(ctx context.Context, itemId *big.Int, value *big.Int) (*model.CallResult, error)
	BuyWithToken(ctx context.Context, itemId *big.Int, tokenAmount *big.Int) (*model.CallResult, error)

	// Execute は任意の状態変更呼び出しを実行し、確定まで待つ
	Execute(ctx context.Context, req *model.CallRequest) (*model.CallResult, error)

	// RunPlan はプランのステップを順番に実行する
	RunPlan(ctx context.Context, plan *model.Plan) *model.PlanReport

	// VerifyTransaction はトランザクションを検証
	VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error)

	// History はローカルに記録した呼び出し履歴を返す
	History(ctx context.Context, limit int) ([]*model.JournalEntry, error)

	GetContractAddress() string
	Operations() []string
}

// Recorder は呼び出し履歴の保存先 (journal.Journal)
type Recorder interface {
	Begin(ctx context.Context, req *model.CallRequest) (*model.JournalEntry, error)
	Update(ctx context.Context, id string, status model.CallStatus, txHash string, reason string) error
	FindConfirmed(ctx context.Context, fingerprint string) (*model.JournalEntry, error)
	List(ctx context.Context, limit int) ([]*model.JournalEntry, error)
}

// AllowanceEnsurer は buyWithToken の前にERC-20の許可量を揃える
type AllowanceEnsurer interface {
	EnsureAllowance(ctx context.Context, amount *big.Int) error
}

// Option は contractUsecase の任意設定
type Option func(*contractUsecase)

// WithJournal は呼び出し履歴を記録する
func WithJournal(r Recorder) Option {
	return func(uc *contractUsecase) { uc.journal = r }
}

// WithDuplicateGuard は確定済みと同一の呼び出しを送信前に拒否する (journal 必須)
func WithDuplicateGuard(enabled bool) Option {
	return func(uc *contractUsecase) { uc.once = enabled }
}

// WithAllowance は buyWithToken の前に許可量を確認する
func WithAllowance(a AllowanceEnsurer) Option {
	return func(uc *contractUsecase) { uc.allowance = a }
}

type contractUsecase struct {
	gateway   contract.ContractGateway
	journal   Recorder
	allowance AllowanceEnsurer
	once      bool
}

func NewContractUsecase(gw contract.ContractGateway, opts ...Option) *contractUsecase {
	uc := &contractUsecase{gateway: gw}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *contractUsecase) ChangeOwner(ctx context.Context, newOwner string) (*model.CallResult, error) {
	return uc.call(ctx, model.OpChangeOwner, nil, newOwner)
}

func (uc *contractUsecase) ChangeFee(ctx context.Context, newFee *big.Int) (*model.CallResult, error) {
	return uc.call(ctx, model.OpChangeFee, nil, newFee)
}

func (uc *contractUsecase) MarkItemAsSold(ctx context.Context, itemId *big.Int) (*model.CallResult, error) {
	return uc.call(ctx, model.OpMarkItemAsSold, nil, itemId)
}

func (uc *contractUsecase) MarkItemAsUnsold(ctx context.Context, itemId *big.Int) (*model.CallResult, error) {
	return uc.call(ctx, model.OpMarkItemAsUnsold, nil, itemId)
}

func (uc *contractUsecase) BlacklistUser(ctx context.Context, user string) (*model.CallResult, error) {
	return uc.call(ctx, model.OpBlacklistUser, nil, user)
}

func (uc *contractUsecase) WhitelistUser(ctx context.Context, user string) (*model.CallResult, error) {
	return uc.call(ctx, model.OpWhitelistUser, nil, user)
}

func (uc *contractUsecase) CreateItem(ctx context.Context, item *model.NewItem) (*model.CallResult, error) {
	if item == nil {
		return nil, model.ConfigError(model.OpCreateItem, "item is required")
	}
	saleEnd := item.SaleEndTime
	if saleEnd == nil {
		saleEnd = new(big.Int)
	}
	return uc.call(ctx, model.OpCreateItem, nil,
		item.ItemId, item.PriceInEth, item.PriceInToken, item.URI, item.IsUnlimited, saleEnd)
}

func (uc *contractUsecase) BuyWithEth(ctx context.Context, itemId *big.Int, value *big.Int) (*model.CallResult, error) {
	return uc.call(ctx, model.OpBuyWithEth, value, itemId)
}

func (uc *contractUsecase) BuyWithToken(ctx context.Context, itemId *big.Int, tokenAmount *big.Int) (*model.CallResult, error) {
	return uc.call(ctx, model.OpBuyWithToken, nil, itemId, tokenAmount)
}

func (uc *contractUsecase) call(ctx context.Context, op string, value *big.Int, args ...interface{}) (*model.CallResult, error) {
	for _, arg := range args {
		// 型付きnilはABI側で検出できないのでここで弾く
		if n, ok := arg.(*big.Int); ok && n == nil {
			return nil, model.ConfigError(op, "missing numeric argument")
		}
	}
	return uc.Execute(ctx, &model.CallRequest{Operation: op, Args: args, Value: value})
}

func (uc *contractUsecase) Execute(ctx context.Context, req *model.CallRequest) (*model.CallResult, error) {
	// approve や履歴の記録より先に、不正な引数をネットワークに触れず弾く
	if err := uc.gateway.Validate(req); err != nil {
		log.Error("Contract call rejected", "operation", req.Operation, "err", err)
		return nil, err
	}

	if uc.once && uc.journal != nil {
		prev, err := uc.journal.FindConfirmed(ctx, journal.Fingerprint(req))
		if err != nil {
			log.Warn("Failed to look up call journal", "operation", req.Operation, "err", err)
		} else if prev != nil {
			return nil, &model.CallError{
				Kind:      model.ErrAlreadyConfirmed,
				Operation: req.Operation,
				TxHash:    common.HexToHash(prev.TxHash),
				Reason:    "confirmed at " + prev.UpdatedAt.Format("2006-01-02 15:04:05Z07:00"),
			}
		}
	}

	if req.Operation == model.OpBuyWithToken && uc.allowance != nil && len(req.Args) == 2 {
		amount, err := contract.IntegerArg(req.Args[1])
		if err != nil {
			return nil, model.ConfigError(req.Operation, "token amount: %v", err)
		}
		if err := uc.allowance.EnsureAllowance(ctx, amount); err != nil {
			return nil, err
		}
	}

	entryID := uc.begin(ctx, req)

	pending, err := uc.gateway.Submit(ctx, req)
	if err != nil {
		uc.finish(ctx, entryID, "", err)
		log.Error("Contract call failed", "operation", req.Operation, "err", err)
		return nil, err
	}
	log.Info("Submitted contract call, waiting for confirmation", "operation", req.Operation, "tx", pending.TxHash)
	uc.record(ctx, entryID, model.StatusPending, pending.TxHash.Hex(), "")

	result, err := uc.gateway.Wait(ctx, pending)
	if err != nil {
		uc.finish(ctx, entryID, pending.TxHash.Hex(), err)
		log.Error("Contract call failed", "operation", req.Operation, "tx", pending.TxHash, "err", err)
		return nil, err
	}
	uc.record(ctx, entryID, model.StatusConfirmed, result.TxHash, "")
	log.Info("Contract call confirmed", "operation", req.Operation, "tx", result.TxHash, "block", result.BlockNumber, "gasUsed", result.GasUsed)
	return result, nil
}

func (uc *contractUsecase) begin(ctx context.Context, req *model.CallRequest) string {
	if uc.journal == nil {
		return ""
	}
	entry, err := uc.journal.Begin(ctx, req)
	if err != nil {
		log.Warn("Failed to record call in journal", "operation", req.Operation, "err", err)
		return ""
	}
	return entry.ID
}

func (uc *contractUsecase) record(ctx context.Context, id string, status model.CallStatus, txHash, reason string) {
	if uc.journal == nil || id == "" {
		return
	}
	// 呼び出し元がキャンセルしても結果は残す
	if err := uc.journal.Update(context.WithoutCancel(ctx), id, status, txHash, reason); err != nil {
		log.Warn("Failed to update call journal", "id", id, "err", err)
	}
}

func (uc *contractUsecase) finish(ctx context.Context, id string, txHash string, err error) {
	uc.record(ctx, id, statusOf(err), txHash, model.Reason(err))
}

// statusOf はエラーの種類から履歴に残す状態を決める
func statusOf(err error) model.CallStatus {
	switch {
	case errors.Is(err, model.ErrExecutionReverted):
		return model.StatusRejected
	case errors.Is(err, model.ErrConfirmationTimeout):
		// 未確定のまま。後から verify-tx で確認する
		return model.StatusPending
	default:
		return model.StatusFailed
	}
}

func (uc *contractUsecase) RunPlan(ctx context.Context, plan *model.Plan) *model.PlanReport {
	report := &model.PlanReport{}
	for i, step := range plan.Steps {
		if ctx.Err() != nil {
			report.Aborted = true
			break
		}

		sr := model.StepReport{Index: i + 1, Operation: step.Operation}
		req := &model.CallRequest{Operation: step.Operation, Args: step.Args}
		if step.Value != "" {
			value, err := contract.ParseEther(step.Value)
			if err != nil {
				sr.Err = model.ConfigError(step.Operation, "value: %v", err)
			}
			req.Value = value
		}
		if sr.Err == nil {
			sr.Result, sr.Err = uc.Execute(ctx, req)
		}
		if sr.Err != nil {
			sr.Error = sr.Err.Error()
			log.Error("Plan step failed", "step", sr.Index, "operation", step.Operation, "reason", model.Reason(sr.Err))
		}
		report.Steps = append(report.Steps, sr)

		if sr.Err != nil && !plan.ContinueOnError {
			report.Aborted = i < len(plan.Steps)-1
			break
		}
	}
	return report
}

func (uc *contractUsecase) VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error) {
	return uc.gateway.VerifyTransaction(ctx, txHash)
}

func (uc *contractUsecase) History(ctx context.Context, limit int) ([]*model.JournalEntry, error) {
	if uc.journal == nil {
		return nil, errors.New("call journal is not enabled (JOURNAL_PATH)")
	}
	return uc.journal.List(ctx, limit)
}

func (uc *contractUsecase) GetContractAddress() string {
	return uc.gateway.GetContractAddress()
}

func (uc *contractUsecase) Operations() []string {
	return uc.gateway.Operations()
}
