package truffle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// InsertNetwork 在配置源码的 networks 对象中插入一个网络定义，返回新的源码。
// 其余源码原样保留；networks 不存在时在 module.exports 中新建。
func InsertNetwork(src string, entry NetworkEntry) (string, error) {
	if entry.Name == "" {
		return "", fmt.Errorf("network name is required")
	}

	program, err := parser.ParseFile(nil, "truffle-config.js", src, 0)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	ev := newEvaluator(src, program)
	exports := findModuleExports(program, ev)
	if exports == nil {
		return "", fmt.Errorf("%w: module.exports object literal not found", ErrConfigParse)
	}

	var out string
	networks, found, err := findNetworksLiteral(exports, ev)
	if err != nil {
		return "", err
	}
	if found {
		for _, prop := range networks.Value {
			kp, ok := prop.(*ast.PropertyKeyed)
			if !ok {
				continue
			}
			if key, err := ev.propertyKey(kp, 0); err == nil && key == entry.Name {
				return "", fmt.Errorf("%w: %s", ErrDuplicateNetwork, entry.Name)
			}
		}
		indent := childIndent(src, networks)
		out = insertProperty(src, networks, indent, strconv.Quote(entry.Name)+": "+RenderNetwork(entry.Options, indent))
	} else {
		indent := childIndent(src, exports)
		inner := indent + "  "
		body := "networks: {\n" + inner + strconv.Quote(entry.Name) + ": " + RenderNetwork(entry.Options, inner) + "\n" + indent + "}"
		out = insertProperty(src, exports, indent, body)
	}

	if _, err := Parse(out, DefaultDirectories()); err != nil {
		return "", fmt.Errorf("generated configuration is invalid: %w", err)
	}
	return out, nil
}

func findNetworksLiteral(exports *ast.ObjectLiteral, ev *evaluator) (*ast.ObjectLiteral, bool, error) {
	for _, prop := range exports.Value {
		kp, ok := prop.(*ast.PropertyKeyed)
		if !ok {
			continue
		}
		key, err := ev.propertyKey(kp, 0)
		if err != nil || key != "networks" {
			continue
		}
		lit := resolveObjectLiteral(kp.Value, ev, 0)
		if lit == nil {
			return nil, false, fmt.Errorf("%w: networks is not an object literal", ErrConfigParse)
		}
		return lit, true, nil
	}
	return nil, false, nil
}

// RenderNetwork 把网络选项渲染成 JS 对象字面量，indent 为属性所在行的缩进
func RenderNetwork(opts NetworkOptions, indent string) string {
	inner := indent + "  "
	var lines []string
	add := func(key, value string) {
		lines = append(lines, inner+key+": "+value)
	}

	if opts.Host != "" {
		add("host", strconv.Quote(opts.Host))
	}
	if opts.Port != 0 {
		add("port", strconv.FormatUint(opts.Port, 10))
	}
	if opts.NetworkID != "" {
		if _, err := strconv.ParseUint(opts.NetworkID, 10, 64); err == nil {
			add("network_id", opts.NetworkID)
		} else {
			add("network_id", strconv.Quote(opts.NetworkID))
		}
	}
	if opts.From != "" {
		add("from", strconv.Quote(opts.From))
	}
	if opts.Gas != 0 {
		add("gas", strconv.FormatUint(opts.Gas, 10))
	}
	if opts.GasPrice != 0 {
		add("gasPrice", strconv.FormatUint(opts.GasPrice, 10))
	}
	if opts.Provider != nil && opts.Provider.RawExpression != "" {
		add("provider", opts.Provider.RawExpression)
	}
	if opts.SkipDryRun {
		add("skipDryRun", "true")
	}
	if opts.TimeoutBlocks != 0 {
		add("timeoutBlocks", strconv.FormatUint(opts.TimeoutBlocks, 10))
	}
	if opts.Websockets {
		add("websockets", "true")
	}

	keys := make([]string, 0, len(opts.Extra))
	for k := range opts.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if lit, ok := scalarLiteral(opts.Extra[k]); ok {
			add(strconv.Quote(k), lit)
		}
	}

	if len(lines) == 0 {
		return "{}"
	}
	return "{\n" + strings.Join(lines, ",\n") + "\n" + indent + "}"
}

func scalarLiteral(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x), true
	case bool:
		return strconv.FormatBool(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	}
	return "", false
}

func insertProperty(src string, lit *ast.ObjectLiteral, indent, text string) string {
	if len(lit.Value) == 0 {
		pos := int(lit.RightBrace) - 1
		return src[:pos] + "\n" + indent + text + "\n" + lineIndent(src, pos) + src[pos:]
	}
	last := lit.Value[len(lit.Value)-1]
	pos := int(last.Idx1()) - 1
	return src[:pos] + ",\n" + indent + text + src[pos:]
}

// childIndent 推断对象字面量内属性的缩进
func childIndent(src string, lit *ast.ObjectLiteral) string {
	if len(lit.Value) > 0 {
		return lineIndent(src, int(lit.Value[0].Idx0())-1)
	}
	return lineIndent(src, int(lit.LeftBrace)-1) + "  "
}

func lineIndent(src string, pos int) string {
	if pos > len(src) {
		pos = len(src)
	}
	start := strings.LastIndex(src[:pos], "\n") + 1
	end := start
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return src[start:end]
}
