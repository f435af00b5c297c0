package model

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// 呼び出し失敗の分類。CallError.Kind に入り errors.Is で判定する
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrSubmission          = errors.New("submission error")
	ErrExecutionReverted   = errors.New("execution reverted")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrAlreadyConfirmed    = errors.New("identical call already confirmed")
	ErrNotFound            = errors.New("not found")
)

// CallError は1回の呼び出しの失敗
type CallError struct {
	Kind      error
	Operation string
	TxHash    common.Hash // 送信前の失敗ではゼロ値
	Reason    string      // リモート側の理由 (デコードしない)
	Err       error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Operation, e.Kind)
	if e.TxHash != (common.Hash{}) {
		msg += " (tx " + e.TxHash.Hex() + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ConfigError は設定・引数の不備を表すエラーを作る
func ConfigError(operation, format string, args ...interface{}) *CallError {
	return &CallError{
		Kind:      ErrConfiguration,
		Operation: operation,
		Err:       fmt.Errorf(format, args...),
	}
}

// Reason はエラーからリモート側の理由を取り出す。なければエラー文字列
func Reason(err error) string {
	var ce *CallError
	if errors.As(err, &ce) {
		if ce.Reason != "" {
			return ce.Reason
		}
		if ce.Err != nil {
			return ce.Err.Error()
		}
		return ce.Kind.Error()
	}
	return err.Error()
}
