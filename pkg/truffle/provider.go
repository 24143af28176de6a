package truffle

import (
	"strconv"
	"strings"
)

// decomposeProvider 把 provider 字段拆成原始表达式与尽力提取的 URL。
//
// 规则：表达式中第一个形如 scheme:// 的字符串字面量优先；否则当最外层调用有两个及以上参数、
// 且最后一个参数是字符串时取该字符串（HDWalletProvider(mnemonic, url) 的约定）；否则 URL 缺省。
func decomposeProvider(v interface{}) *Provider {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		p := &Provider{RawExpression: strconv.Quote(x)}
		if x != "" {
			p.ResolvedURL = x
		}
		return p
	case *Expression:
		p := &Provider{
			RawExpression: x.Source,
			Arguments:     x.Literals,
		}
		p.ResolvedURL = extractURL(x)
		return p
	default:
		return &Provider{RawExpression: strings.TrimSpace(stringify(v))}
	}
}

func extractURL(x *Expression) string {
	for _, lit := range x.Literals {
		if looksLikeURL(lit) {
			return lit
		}
	}
	if len(x.Args) >= 2 {
		if s, ok := x.Args[len(x.Args)-1].(string); ok {
			return s
		}
	}
	return ""
}

func looksLikeURL(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}
	for _, r := range s[:i] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case *Object:
		return "{...}"
	case []interface{}:
		return "[...]"
	}
	return ""
}
