package handler

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"nftmarketplace-onchain/gateway/contract"
	"nftmarketplace-onchain/model"
	"nftmarketplace-onchain/usecase/contract"
)

// MaxBodyBytes はリクエストボディの上限
const MaxBodyBytes = 1 << 20

type ContractHandler struct {
	contractUC usecase.ContractUsecase
}

func NewContractHandler(uc usecase.ContractUsecase) *ContractHandler {
	return &ContractHandler{contractUC: uc}
}

// CallRequest はコントラクト呼び出しAPIの入力
type CallRequest struct {
	Operation string        `json:"operation"`
	Args      []interface{} `json:"args"`
	Value     string        `json:"value,omitempty"`     // ETH単位
	ValueWei  string        `json:"value_wei,omitempty"` // Wei単位 (value より優先)
}

// HandleCall は状態変更呼び出しを実行し、確定するまで待ってから結果を返す
func (h *ContractHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	// 大きな整数を float64 に丸めない
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if op := mux.Vars(r)["operation"]; op != "" {
		req.Operation = op
	}
	if req.Operation == "" {
		http.Error(w, "operation is required", http.StatusBadRequest)
		return
	}

	callReq := &model.CallRequest{Operation: req.Operation, Args: req.Args}
	switch {
	case req.ValueWei != "":
		wei, ok := new(big.Int).SetString(req.ValueWei, 10)
		if !ok {
			http.Error(w, "value_wei must be a decimal integer", http.StatusBadRequest)
			return
		}
		callReq.Value = wei
	case req.Value != "":
		wei, err := contract.ParseEther(req.Value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		callReq.Value = wei
	}

	result, err := h.contractUC.Execute(r.Context(), callReq)
	if err != nil {
		WriteCallError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// VerifyTxRequest はトランザクション検証リクエスト
type VerifyTxRequest struct {
	TxHash string `json:"tx_hash"`
}

// HandleVerifyTransaction はトランザクションを検証
func (h *ContractHandler) HandleVerifyTransaction(w http.ResponseWriter, r *http.Request) {
	var req VerifyTxRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.TxHash == "" {
		http.Error(w, "tx_hash is required", http.StatusBadRequest)
		return
	}

	verification, err := h.contractUC.VerifyTransaction(r.Context(), req.TxHash)
	if err != nil {
		WriteCallError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verification)
}

// HandleContractInfo はコントラクト情報を返す
func (h *ContractHandler) HandleContractInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"contract_address": h.contractUC.GetContractAddress(),
		"operations":       h.contractUC.Operations(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// HandleHistory はローカルの呼び出し履歴を返す
func (h *ContractHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.contractUC.History(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if entries == nil {
		entries = []*model.JournalEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// WriteCallError はエラーの種類をHTTPステータスに対応させて返す
func WriteCallError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyConfirmed):
		status = http.StatusConflict
	case errors.Is(err, model.ErrExecutionReverted):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrSubmission):
		status = http.StatusBadGateway
	case errors.Is(err, model.ErrConfirmationTimeout):
		status = http.StatusGatewayTimeout
	}

	body := map[string]string{
		"error":  err.Error(),
		"reason": model.Reason(err),
	}
	var callErr *model.CallError
	if errors.As(err, &callErr) {
		body["operation"] = callErr.Operation
		if callErr.TxHash != (common.Hash{}) {
			body["tx_hash"] = callErr.TxHash.Hex()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
