package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nftmarketplace-onchain/model"
)

type fakeUsecase struct {
	requests []*model.CallRequest
	err      error
	history  []*model.JournalEntry
}

func (f *fakeUsecase) exec(req *model.CallRequest) (*model.CallResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &model.CallResult{Operation: req.Operation, TxHash: "0x01", Status: model.StatusConfirmed, BlockNumber: 9}, nil
}

func (f *fakeUsecase) ChangeOwner(ctx context.Context, newOwner string) (*model.CallResult, error) {
	return f.exec(&model.CallRequest{Operation: model.OpChangeOwner, Args: []interface{}{newOwner}})
}
func (f *fakeUsecase) ChangeFee(ctx context.Context, newFee *big.Int) (*model.CallResult, error) {
	return f.exec(&model.CallRequest{Operation: model.OpChangeFee, Args: []interface{}{newFee}})
}
func (f *fakeUsecase) MarkItemAsSold(ctx context.Context, itemId *big.Int) (*model.CallResult, error) {
	return f.exec(&model.CallRequest{Operation: model.OpMarkItemAsSold, Args: []interface{}{itemId}})
}
func (f *fakeUsecase) MarkItemAsUnsold(ctx context.Context, itemId *big.Int) (*model.CallResult, error) {
	return f.exec(&model.CallRequest{Operation: model.OpMarkItemAsUnsold, Args: []interface{}{itemId}})
}
func (f *fakeUsecase) BlacklistUser(ctx context.Context, user string) (*model.CallResult, error) {
	return f.exec(&model.CallRequest{Operation: model.OpBlacklistUser, Args: []interface{}{user}})
}
func (f *fakeUsecase) WhitelistUser(ctx context.Context, user string) (*model.CallResult, error) {
	return f.exec(&model.CallRequest{Operation: model.OpWhitelistUser, Args: []interface{}{user}})
}
func (f *fakeUsecase) CreateItem(ctx context.Context, item *model.NewItem) (*model.CallResult, error) {
	return f.exec(&model.CallRequest{Operation: model.OpCreateItem})
}
func (f *fakeUsecase) BuyWithEth(ctx context.Context, itemId *big.Int, value *big.Int) (*model.CallResult, error) {
	return f.exec(&model.CallRequest{Operation: model.OpBuyWithEth, Args: []interface{}{itemId}, Value: value})
}
func (f *fakeUsecase) BuyWithToken(ctx context.Context, itemId *big.Int, tokenAmount *big.Int) (*model.CallResult, error) {
	return f.exec(&model.CallRequest{Operation: model.OpBuyWithToken, Args: []interface{}{itemId, tokenAmount}})
}
func (f *fakeUsecase) Execute(ctx context.Context, req *model.CallRequest) (*model.CallResult, error) {
	return f.exec(req)
}
func (f *fakeUsecase) RunPlan(ctx context.Context, plan *model.Plan) *model.PlanReport {
	return &model.PlanReport{}
}
func (f *fakeUsecase) VerifyTransaction(ctx context.Context, txHash string) (*model.TxVerification, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.TxVerification{TxHash: txHash, Status: "success", Success: true, IsContractCall: true}, nil
}
func (f *fakeUsecase) History(ctx context.Context, limit int) ([]*model.JournalEntry, error) {
	if f.history == nil {
		return nil, errors.New("call journal is not enabled (JOURNAL_PATH)")
	}
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}
func (f *fakeUsecase) GetContractAddress() string { return "0x0D3ab14BBaD3D99F4203bd7a11aCB94882050E7e" }
func (f *fakeUsecase) Operations() []string       { return []string{model.OpBuyWithEth, model.OpChangeFee} }

func TestHandleCall(t *testing.T) {
	uc := &fakeUsecase{}
	h := NewContractHandler(uc)

	body := `{"operation":"buyWithEth","args":[123456789012345678901234567890],"value":"0.5"}`
	rec := httptest.NewRecorder()
	h.HandleCall(rec, httptest.NewRequest(http.MethodPost, "/api/v1/contract/call", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var result model.CallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, model.StatusConfirmed, result.Status)

	require.Len(t, uc.requests, 1)
	req := uc.requests[0]
	assert.Equal(t, model.OpBuyWithEth, req.Operation)
	assert.Equal(t, json.Number("123456789012345678901234567890"), req.Args[0])
	assert.Equal(t, "500000000000000000", req.Value.String())
}

func TestHandleCall_OperationFromPath(t *testing.T) {
	uc := &fakeUsecase{}
	h := NewContractHandler(uc)
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/contract/call/{operation}", h.HandleCall).Methods("POST")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/contract/call/buyWithEth", strings.NewReader(`{"args":[1],"value_wei":"42"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, uc.requests, 1)
	assert.Equal(t, model.OpBuyWithEth, uc.requests[0].Operation)
	assert.Equal(t, big.NewInt(42), uc.requests[0].Value)
}

func TestHandleCall_BadInput(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"no operation":  `{"args":[1]}`,
		"bad value":     `{"operation":"buyWithEth","args":[1],"value":"lots"}`,
		"bad value wei": `{"operation":"buyWithEth","args":[1],"value_wei":"1.5"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			uc := &fakeUsecase{}
			rec := httptest.NewRecorder()
			NewContractHandler(uc).HandleCall(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, uc.requests)
		})
	}
}

func TestHandleCall_ErrorMapping(t *testing.T) {
	txHash := common.HexToHash("0xbeef")
	cases := []struct {
		err    error
		status int
	}{
		{&model.CallError{Kind: model.ErrConfiguration, Operation: "changeFee", Err: errors.New("expected 1 arguments, got 0")}, http.StatusBadRequest},
		{&model.CallError{Kind: model.ErrSubmission, Operation: "changeFee", Err: errors.New("dial tcp: refused")}, http.StatusBadGateway},
		{&model.CallError{Kind: model.ErrExecutionReverted, Operation: "changeFee", TxHash: txHash, Reason: "Ownable: caller is not the owner"}, http.StatusUnprocessableEntity},
		{&model.CallError{Kind: model.ErrConfirmationTimeout, Operation: "changeFee", TxHash: txHash, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{&model.CallError{Kind: model.ErrAlreadyConfirmed, Operation: "changeFee", TxHash: txHash}, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		uc := &fakeUsecase{err: tc.err}
		rec := httptest.NewRecorder()
		NewContractHandler(uc).HandleCall(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"operation":"changeFee","args":[10]}`)))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}

	uc := &fakeUsecase{err: cases[2].err}
	rec := httptest.NewRecorder()
	NewContractHandler(uc).HandleCall(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"operation":"changeFee","args":[10]}`)))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Ownable: caller is not the owner", body["reason"])
	assert.Equal(t, "changeFee", body["operation"])
	assert.Equal(t, txHash.Hex(), body["tx_hash"])
}

func TestHandleVerifyTransaction(t *testing.T) {
	h := NewContractHandler(&fakeUsecase{})

	rec := httptest.NewRecorder()
	h.HandleVerifyTransaction(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tx_hash":"0xabc"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var v model.TxVerification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "0xabc", v.TxHash)
	assert.True(t, v.IsContractCall)

	rec = httptest.NewRecorder()
	h.HandleVerifyTransaction(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleVerifyTransaction_NotFound(t *testing.T) {
	uc := &fakeUsecase{err: &model.CallError{Kind: model.ErrNotFound, Operation: "verify", Err: errors.New("transaction 0x01")}}
	rec := httptest.NewRecorder()
	NewContractHandler(uc).HandleVerifyTransaction(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tx_hash":"0x01"}`)))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "verify", body["operation"])
}

func TestHandleCall_BodyTooLarge(t *testing.T) {
	uc := &fakeUsecase{}
	body := `{"operation":"changeOwner","args":["` + strings.Repeat("a", MaxBodyBytes) + `"]}`
	rec := httptest.NewRecorder()
	NewContractHandler(uc).HandleCall(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, uc.requests)
}

func TestHandleContractInfo(t *testing.T) {
	rec := httptest.NewRecorder()
	NewContractHandler(&fakeUsecase{}).HandleContractInfo(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var info struct {
		ContractAddress string   `json:"contract_address"`
		Operations      []string `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "0x0D3ab14BBaD3D99F4203bd7a11aCB94882050E7e", info.ContractAddress)
	assert.Equal(t, []string{model.OpBuyWithEth, model.OpChangeFee}, info.Operations)
}

func TestHandleHistory(t *testing.T) {
	uc := &fakeUsecase{history: []*model.JournalEntry{
		{ID: "a", Operation: model.OpChangeFee, Status: model.StatusConfirmed},
		{ID: "b", Operation: model.OpChangeOwner, Status: model.StatusRejected},
	}}
	h := NewContractHandler(uc)

	rec := httptest.NewRecorder()
	h.HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []model.JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)

	rec = httptest.NewRecorder()
	h.HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	NewContractHandler(&fakeUsecase{}).HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
