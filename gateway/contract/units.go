package contract

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/params"
)

var weiPerEther = big.NewInt(params.Ether)

// ParseEther はETH表記の10進数文字列をWeiに変換する ("1" -> 1e18)。
// 18桁を超える小数や負数はエラー
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty ether amount")
	}
	if !isDecimal(s) {
		return nil, fmt.Errorf("invalid ether amount %q", s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid ether amount %q", s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("negative ether amount %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, fmt.Errorf("ether amount %q has more than 18 decimals", s)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatEther はWeiをETH表記に変換する (末尾の0は省く)
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, weiPerEther)
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// ParseInteger は10進、または 0x/0X 付きの16進の整数を読む。
// 先頭の0を8進とみなすことはなく、0b/0o や区切りの _ も受け付けない
func ParseInteger(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg, s = true, s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
	}
	// ParseBig256 は空文字を0とし、内側の符号も通すので先に弾く
	if digits == "" {
		return nil, false
	}
	for _, c := range digits {
		if !isDigit(c, base) {
			return nil, false
		}
	}
	n, ok := math.ParseBig256(s)
	if !ok {
		return nil, false
	}
	if neg {
		n.Neg(n)
	}
	return n, true
}

func isDigit(c rune, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case base == 16 && (c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'):
		return true
	}
	return false
}

// isDecimal は "12" や "0.5" のような符号なし10進表記かを返す
func isDecimal(s string) bool {
	digits, dots := 0, 0
	for _, c := range s {
		switch {
		case c == '.':
			dots++
		case isDigit(c, 10):
			digits++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
