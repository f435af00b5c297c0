package gateway

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nftmarketplace-onchain/model"
)

const (
	owner   = "0x000000000000000000000000000000000000dEaD"
	spender = "0x0D3ab14BBaD3D99F4203bd7a11aCB94882050E7e"
	token   = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
)

type fakeBalances struct {
	accounts []common.Address
}

func (f *fakeBalances) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	f.accounts = append(f.accounts, account)
	return big.NewInt(3e18), nil
}

// fakeToken は contract.ContractGateway を満たすERC-20の代役
type fakeToken struct {
	queries  []string
	args     [][]interface{}
	executed []*model.CallRequest
	result   *big.Int
}

func (f *fakeToken) Execute(ctx context.Context, req *model.CallRequest) (*model.CallResult, error) {
	f.executed = append(f.executed, req)
	return &model.CallResult{Operation: req.Operation, Status: model.StatusConfirmed, TxHash: "0xabc"}, nil
}

func (f *fakeToken) Validate(req *model.CallRequest) error { return nil }

func (f *fakeToken) Submit(ctx context.Context, req *model.CallRequest) (*model.PendingCall, error) {
	return &model.PendingCall{Operation: req.Operation}, nil
}

func (f *fakeToken) Wait(ctx context.Context, p *model.PendingCall) (*model.CallResult, error) {
	return &model.CallResult{Operation: p.Operation, Status: model.StatusConfirmed}, nil
}

func (f *fakeToken) Query(ctx context.Context, operation string, args ...interface{}) ([]interface{}, error) {
	f.queries = append(f.queries, operation)
	f.args = append(f.args, args)
	return []interface{}{f.result}, nil
}

func (f *fakeToken) VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error) {
	return &model.TxVerification{TxHash: txHash}, nil
}

func (f *fakeToken) GetContractAddress() string { return token }

func (f *fakeToken) Operations() []string { return []string{"approve"} }

func TestGetNativeBalance(t *testing.T) {
	balances := &fakeBalances{}
	g := NewEthPaymentGateway(balances, nil)

	got, err := g.GetNativeBalance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3e18), got)
	assert.Equal(t, common.HexToAddress(owner), balances.accounts[0])

	_, err = g.GetNativeBalance(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestTokenQueries(t *testing.T) {
	tok := &fakeToken{result: big.NewInt(500)}
	g := NewEthPaymentGateway(&fakeBalances{}, tok)

	balance, err := g.GetTokenBalance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), balance)

	allowance, err := g.GetAllowance(context.Background(), owner, spender)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), allowance)

	assert.Equal(t, []string{"balanceOf", "allowance"}, tok.queries)
	assert.Equal(t, []interface{}{common.HexToAddress(owner), common.HexToAddress(spender)}, tok.args[1])
	assert.Equal(t, token, g.GetTokenAddress())
}

func TestApprove(t *testing.T) {
	tok := &fakeToken{}
	g := NewEthPaymentGateway(&fakeBalances{}, tok)

	result, err := g.Approve(context.Background(), spender, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, result.Status)
	require.Len(t, tok.executed, 1)
	assert.Equal(t, "approve", tok.executed[0].Operation)
	assert.Equal(t, []interface{}{spender, big.NewInt(100)}, tok.executed[0].Args)
}

func TestTokenNotConfigured(t *testing.T) {
	g := NewEthPaymentGateway(&fakeBalances{}, nil)

	_, err := g.GetTokenBalance(context.Background(), owner)
	assert.ErrorIs(t, err, model.ErrConfiguration)
	_, err = g.GetAllowance(context.Background(), owner, spender)
	assert.ErrorIs(t, err, model.ErrConfiguration)
	_, err = g.Approve(context.Background(), spender, big.NewInt(1))
	assert.ErrorIs(t, err, model.ErrConfiguration)
	assert.Equal(t, "", g.GetTokenAddress())
}
