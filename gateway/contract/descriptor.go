package contract

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"nftmarketplace-onchain/model"
)

// Descriptor は呼び出し先コントラクト (アドレス + ABI)
type Descriptor struct {
	Address common.Address
	ABI     abi.ABI
}

// NewDescriptor はアドレス文字列とABI JSONからDescriptorを作る
func NewDescriptor(addr string, abiJSON string) (*Descriptor, error) {
	if !common.IsHexAddress(addr) {
		return nil, model.ConfigError("descriptor", "invalid contract address %q", addr)
	}
	address := common.HexToAddress(addr)
	if address == (common.Address{}) {
		return nil, model.ConfigError("descriptor", "contract address is the zero address")
	}

	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, model.ConfigError("descriptor", "parse ABI: %v", err)
	}
	if len(parsedABI.Methods) == 0 {
		return nil, model.ConfigError("descriptor", "ABI defines no methods")
	}

	return &Descriptor{Address: address, ABI: parsedABI}, nil
}

// Operations は状態変更関数の名前をソートして返す
func (d *Descriptor) Operations() []string {
	var ops []string
	for name, m := range d.ABI.Methods {
		if !m.IsConstant() {
			ops = append(ops, name)
		}
	}
	sort.Strings(ops)
	return ops
}

// method は操作名に対応するABIメソッドを返す
func (d *Descriptor) method(operation string, constant bool) (abi.Method, error) {
	m, ok := d.ABI.Methods[operation]
	if !ok {
		return abi.Method{}, model.ConfigError(operation, "operation not found in contract interface")
	}
	if m.IsConstant() != constant {
		if constant {
			return abi.Method{}, model.ConfigError(operation, "operation changes state; submit it as a transaction")
		}
		return abi.Method{}, model.ConfigError(operation, "operation is read-only; use a query")
	}
	return m, nil
}
