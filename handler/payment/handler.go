package handler

import (
	"encoding/json"
	"math/big"
	"net/http"

	contractHandler "nftmarketplace-onchain/handler/contract"
	"nftmarketplace-onchain/usecase/payment"
)

type PaymentHandler struct {
	paymentUC usecase.PaymentUsecase
}

func NewPaymentHandler(uc usecase.PaymentUsecase) *PaymentHandler {
	return &PaymentHandler{paymentUC: uc}
}

// HandleGetBalance はETHと支払いトークンの残高を返す (account 未指定なら署名アカウント)
func (h *PaymentHandler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	balances, err := h.paymentUC.GetBalances(r.Context(), r.URL.Query().Get("account"))
	if err != nil {
		contractHandler.WriteCallError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(balances)
}

// HandleGetAllowance はマーケットプレイスに許可されたトークン量を返す
func (h *PaymentHandler) HandleGetAllowance(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	allowance, err := h.paymentUC.GetAllowance(r.Context(), owner)
	if err != nil {
		contractHandler.WriteCallError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"owner":     owner,
		"allowance": allowance.String(),
	})
}

// ApproveRequest はトークン許可APIの入力
type ApproveRequest struct {
	Amount string `json:"amount"` // トークンの最小単位 (10進)
}

// HandleApprove はマーケットプレイスにトークンの使用を許可する
func (h *PaymentHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, contractHandler.MaxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		http.Error(w, "amount must be a decimal integer", http.StatusBadRequest)
		return
	}

	result, err := h.paymentUC.Approve(r.Context(), amount)
	if err != nil {
		contractHandler.WriteCallError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
