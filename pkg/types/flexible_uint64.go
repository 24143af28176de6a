package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// FlexibleUint64 可以从多种 JSON 格式解析的 uint64，用于 JSON-RPC 返回的数量字段
// 以及 truffle 配置中 port/gas 等可能写成字符串的数值。
// 支持的格式:
// - JSON 数字: 8545
// - 十六进制字符串: "0x2161"
// - 十进制字符串: "8545"
type FlexibleUint64 struct {
	value uint64
}

// NewFlexibleUint64 创建一个新的 FlexibleUint64
func NewFlexibleUint64(val uint64) FlexibleUint64 {
	return FlexibleUint64{value: val}
}

// ParseFlexibleUint64 从任意标量值解析，配置求值结果会走这里
func ParseFlexibleUint64(v interface{}) (FlexibleUint64, error) {
	switch x := v.(type) {
	case nil:
		return FlexibleUint64{}, nil
	case uint64:
		return FlexibleUint64{value: x}, nil
	case int64:
		if x < 0 {
			return FlexibleUint64{}, fmt.Errorf("negative value: %d", x)
		}
		return FlexibleUint64{value: uint64(x)}, nil
	case int:
		if x < 0 {
			return FlexibleUint64{}, fmt.Errorf("negative value: %d", x)
		}
		return FlexibleUint64{value: uint64(x)}, nil
	case float64:
		if x < 0 {
			return FlexibleUint64{}, fmt.Errorf("negative value: %v", x)
		}
		return FlexibleUint64{value: uint64(x)}, nil
	case string:
		return parseQuantityString(x)
	default:
		return FlexibleUint64{}, fmt.Errorf("unsupported quantity type %T", v)
	}
}

// Value 返回 uint64 值
func (f FlexibleUint64) Value() uint64 {
	return f.value
}

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (f *FlexibleUint64) UnmarshalJSON(data []byte) error {
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		val, err := num.Int64()
		if err != nil {
			// 可能是科学计数法或浮点数
			floatVal, err := num.Float64()
			if err != nil {
				return fmt.Errorf("invalid number: %v", err)
			}
			f.value = uint64(floatVal)
			return nil
		}
		f.value = uint64(val)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("neither number nor string: %v", err)
	}
	parsed, err := parseQuantityString(str)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func parseQuantityString(str string) (FlexibleUint64, error) {
	str = strings.TrimSpace(str)
	// 空字符串视为 0
	if str == "" || str == "0x" {
		return FlexibleUint64{}, nil
	}

	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		hexStr := strings.TrimPrefix(strings.ToLower(str), "0x")

		// 使用 big.Int 处理可能超出 uint64 范围的值
		bigInt := new(big.Int)
		if _, ok := bigInt.SetString(hexStr, 16); !ok {
			return FlexibleUint64{}, fmt.Errorf("invalid hex quantity: %s", str)
		}
		if !bigInt.IsUint64() {
			return FlexibleUint64{}, fmt.Errorf("hex quantity overflows uint64: %s", str)
		}
		return FlexibleUint64{value: bigInt.Uint64()}, nil
	}

	val, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return FlexibleUint64{}, fmt.Errorf("invalid decimal quantity %s: %v", str, err)
	}
	return FlexibleUint64{value: val}, nil
}

// MarshalJSON 序列化为十六进制字符串格式 (与以太坊标准一致)
func (f FlexibleUint64) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("\"0x%x\"", f.value)), nil
}

// String 返回十六进制字符串表示
func (f FlexibleUint64) String() string {
	return fmt.Sprintf("0x%x", f.value)
}

// Uint64 返回 uint64 值 (Value 的别名)
func (f FlexibleUint64) Uint64() uint64 {
	return f.value
}

// IsZero 检查值是否为 0
func (f FlexibleUint64) IsZero() bool {
	return f.value == 0
}
