package contract

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a"

var testContract = "0x0D3ab14BBaD3D99F4203bd7a11aCB94882050E7e"

// mockBackend はメモリ上でノードを模倣する
type mockBackend struct {
	mu sync.Mutex

	chainID  *big.Int
	gasPrice *big.Int
	nonce    uint64

	estimateErr error
	sendErr     error

	// notFoundPolls 回は NotFound を返してからレシートを返す
	notFoundPolls int
	neverMine     bool
	status        uint64
	blockNumber   uint64
	head          uint64
	headStep      uint64

	callErr    error
	callResult []byte

	sent         []*types.Transaction
	polls        map[common.Hash]int
	calls        []ethereum.CallMsg
	callBlocks   []*big.Int
	networkCalls int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		chainID:     big.NewInt(1337),
		gasPrice:    big.NewInt(1_000_000_000),
		status:      types.ReceiptStatusSuccessful,
		blockNumber: 100,
		head:        100,
		polls:       make(map[common.Hash]int),
	}
}

func (m *mockBackend) touch() {
	m.networkCalls++
}

func (m *mockBackend) ChainID(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	return m.chainID, nil
}

func (m *mockBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	return m.nonce, nil
}

func (m *mockBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	return m.gasPrice, nil
}

func (m *mockBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	if m.estimateErr != nil {
		return 0, m.estimateErr
	}
	return 90_000, nil
}

func (m *mockBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, tx)
	m.nonce++
	return nil
}

func (m *mockBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	m.polls[txHash]++
	if m.neverMine || m.polls[txHash] <= m.notFoundPolls || m.findSent(txHash) == nil {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{
		Status:      m.status,
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(m.blockNumber),
		GasUsed:     42_000,
	}, nil
}

func (m *mockBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	tx := m.findSent(hash)
	if tx == nil {
		return nil, false, ethereum.NotFound
	}
	return tx, m.neverMine, nil
}

func (m *mockBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	h := &types.Header{Number: new(big.Int).SetUint64(m.head)}
	m.head += m.headStep
	return h, nil
}

func (m *mockBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	m.calls = append(m.calls, msg)
	m.callBlocks = append(m.callBlocks, blockNumber)
	if m.callErr != nil {
		return nil, m.callErr
	}
	return m.callResult, nil
}

func (m *mockBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	return big.NewInt(5e18), nil
}

func (m *mockBackend) findSent(hash common.Hash) *types.Transaction {
	for _, tx := range m.sent {
		if tx.Hash() == hash {
			return tx
		}
	}
	return nil
}

func (m *mockBackend) sentTxs() []*types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Transaction(nil), m.sent...)
}

func (m *mockBackend) networkCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkCalls
}

// revertError はノードが返すrevertエラー (rpc.DataError) を模倣する
type revertError struct {
	data string
}

func (e *revertError) Error() string          { return "execution reverted" }
func (e *revertError) ErrorData() interface{} { return e.data }

// revertData は Error(string) 形式のrevertデータを作る
func revertData(t *testing.T, reason string) string {
	t.Helper()
	stringTy, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringTy}}.Pack(reason)
	require.NoError(t, err)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	return key
}

func newTestGateway(t *testing.T, backend *mockBackend, opts Options) *EthContractGateway {
	t.Helper()
	desc, err := NewDescriptor(testContract, JaguarPlaceABI)
	require.NoError(t, err)
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	g, err := NewEthContractGateway(backend, desc, testKey(t), opts)
	require.NoError(t, err)
	return g
}
