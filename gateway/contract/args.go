package contract

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var bigIntType = reflect.TypeOf(&big.Int{})

// normalizeArgs はCLI/HTTP/YAMLから来た緩い型の引数をABIの型に合わせる
func normalizeArgs(inputs abi.Arguments, args []interface{}) ([]interface{}, error) {
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(args))
	}
	out := make([]interface{}, len(args))
	for i, in := range inputs {
		v, err := normalizeArg(in.Type, args[i])
		if err != nil {
			name := in.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", name, in.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

func normalizeArg(t abi.Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, fmt.Errorf("value is nil")
	}
	switch t.T {
	case abi.UintTy, abi.IntTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		return fitInteger(t, n)
	case abi.AddressTy:
		return toAddress(v)
	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("not a bool: %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("not a bool: %T", v)
	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("not a string: %T", v)
		}
		return s, nil
	case abi.BytesTy:
		return toBytes(v)
	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	}
	// 配列・タプルはそのまま abi.Pack に検証させる
	return v, nil
}

// IntegerArg は数値引数を *big.Int として取り出す
func IntegerArg(v interface{}) (*big.Int, error) {
	return toBigInt(v)
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("value is nil")
		}
		return new(big.Int).Set(n), nil
	case big.Int:
		return new(big.Int).Set(&n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return nil, fmt.Errorf("not an integer: %v", n)
		}
		bf := big.NewFloat(n)
		i, _ := bf.Int(nil)
		return i, nil
	case json.Number:
		return parseBigInt(n.String())
	case string:
		return parseBigInt(n)
	}
	return nil, fmt.Errorf("not an integer: %T", v)
}

func parseBigInt(s string) (*big.Int, error) {
	n, ok := ParseInteger(s)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	return n, nil
}

// fitInteger は範囲を検証し、abi.Pack が要求するGoの型に変換する
func fitInteger(t abi.Type, n *big.Int) (interface{}, error) {
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s for unsigned type", n)
		}
		if n.BitLen() > t.Size {
			return nil, fmt.Errorf("value %s overflows uint%d", n, t.Size)
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("value %s overflows int%d", n, t.Size)
		}
	}
	if t.GetType() == bigIntType {
		return n, nil
	}
	var rv reflect.Value
	if t.T == abi.UintTy {
		rv = reflect.ValueOf(n.Uint64())
	} else {
		rv = reflect.ValueOf(n.Int64())
	}
	return rv.Convert(t.GetType()).Interface(), nil
}

func toAddress(v interface{}) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case *common.Address:
		if a == nil {
			return common.Address{}, fmt.Errorf("value is nil")
		}
		return *a, nil
	case string:
		if !common.IsHexAddress(a) {
			return common.Address{}, fmt.Errorf("not a hex address: %q", a)
		}
		return common.HexToAddress(a), nil
	}
	return common.Address{}, fmt.Errorf("not an address: %T", v)
}

func toBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		decoded, err := hexutil.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("not 0x-prefixed hex: %q", b)
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("not bytes: %T", v)
}
