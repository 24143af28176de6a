package truffle

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"devchain/pkg/types"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"
)

// Parse 解析配置源码。
// 只对 module.exports 赋值的对象字面量做静态求值：字面量、对象、数组、字符串拼接和
// 顶层常量引用会被求值，其余表达式（require、new、函数调用）一律保存为 Expression 替身。
func Parse(src string, defaults Directories) (*Configuration, error) {
	program, err := parser.ParseFile(nil, "truffle-config.js", src, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	ev := newEvaluator(src, program)
	exportsExpr := findModuleExports(program, ev)
	if exportsExpr == nil {
		return nil, fmt.Errorf("%w: module.exports object literal not found", ErrConfigParse)
	}

	obj, err := ev.evalObject(exportsExpr, 0)
	if err != nil {
		return nil, err
	}

	return buildConfiguration(obj, defaults)
}

// findModuleExports 查找最后一个 module.exports = {...} 赋值
func findModuleExports(program *ast.Program, ev *evaluator) *ast.ObjectLiteral {
	var found *ast.ObjectLiteral
	for _, stmt := range program.Body {
		es, ok := stmt.(*ast.ExpressionStatement)
		if !ok {
			continue
		}
		assign, ok := es.Expression.(*ast.AssignExpression)
		if !ok || assign.Operator != token.ASSIGN || !isModuleExports(assign.Left) {
			continue
		}
		if lit := resolveObjectLiteral(assign.Right, ev, 0); lit != nil {
			found = lit
		}
	}
	return found
}

func isModuleExports(expr ast.Expression) bool {
	dot, ok := expr.(*ast.DotExpression)
	if !ok || dot.Identifier.Name.String() != "exports" {
		return false
	}
	id, ok := dot.Left.(*ast.Identifier)
	return ok && id.Name.String() == "module"
}

func resolveObjectLiteral(expr ast.Expression, ev *evaluator, depth int) *ast.ObjectLiteral {
	if depth > maxBindingDepth {
		return nil
	}
	switch x := expr.(type) {
	case *ast.ObjectLiteral:
		return x
	case *ast.Identifier:
		if init, ok := ev.bindings[x.Name.String()]; ok {
			return resolveObjectLiteral(init, ev, depth+1)
		}
	}
	return nil
}

func buildConfiguration(obj *Object, defaults Directories) (*Configuration, error) {
	cfg := &Configuration{
		ContractsBuildDirectory: resolveDirectory(obj, KeyContractsBuildDirectory, defaults.ContractsBuildDirectory),
		ContractsDirectory:      resolveDirectory(obj, KeyContractsDirectory, defaults.ContractsDirectory),
		MigrationsDirectory:     resolveDirectory(obj, KeyMigrationsDirectory, defaults.MigrationsDirectory),
	}

	if v, ok := obj.Get("networks"); ok && v != nil {
		networks, ok := v.(*Object)
		if !ok {
			return nil, fmt.Errorf("%w: networks must be an object literal", ErrConfigParse)
		}
		for _, name := range networks.Keys() {
			raw, _ := networks.Get(name)
			optsObj, ok := raw.(*Object)
			if !ok {
				return nil, fmt.Errorf("%w: network %q must be an object literal", ErrConfigParse, name)
			}
			cfg.Networks = append(cfg.Networks, NetworkEntry{Name: name, Options: decodeNetworkOptions(optsObj)})
		}
	}

	if v, ok := obj.Get("compilers"); ok {
		if o, ok := v.(*Object); ok {
			cfg.Compilers = o.Map()
		}
	}
	if v, ok := obj.Get("mocha"); ok {
		if o, ok := v.(*Object); ok {
			cfg.Mocha = o.Map()
		}
	}

	return cfg, nil
}

// resolveDirectory 读取目录字段，缺失或无法解析时回退到默认值。
// path.join(__dirname, "build") 形式按其中的字符串参数拼接。
func resolveDirectory(obj *Object, key, fallback string) string {
	v, ok := obj.Get(key)
	if !ok || v == nil {
		return fallback
	}
	switch x := v.(type) {
	case string:
		if x == "" {
			return fallback
		}
		return x
	case *Expression:
		src := strings.TrimSpace(x.Source)
		if strings.HasPrefix(src, "path.join(") || strings.HasPrefix(src, "path.resolve(") {
			var parts []string
			for _, arg := range x.Args {
				if s, ok := arg.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return filepath.ToSlash(filepath.Join(parts...))
			}
		}
	}
	return fallback
}

// decodeNetworkOptions 无法识别的值放入 Extra，不会让整个配置失败
func decodeNetworkOptions(obj *Object) NetworkOptions {
	var opts NetworkOptions
	extra := func(k string, v interface{}) {
		if opts.Extra == nil {
			opts.Extra = make(map[string]interface{})
		}
		opts.Extra[k] = plain(v)
	}

	for _, key := range obj.Keys() {
		v, _ := obj.Get(key)
		switch key {
		case "host":
			if s, ok := v.(string); ok {
				opts.Host = s
			} else {
				extra(key, v)
			}
		case "port":
			q, err := types.ParseFlexibleUint64(v)
			if err != nil || q.Value() > 65535 {
				// process.env.PORT || 8545 之类的表达式
				extra(key, v)
				continue
			}
			opts.Port = q.Value()
		case "network_id":
			switch id := v.(type) {
			case string:
				opts.NetworkID = id
			case int64:
				opts.NetworkID = strconv.FormatInt(id, 10)
			case float64:
				opts.NetworkID = strconv.FormatFloat(id, 'f', -1, 64)
			default:
				extra(key, v)
			}
		case "from":
			if s, ok := v.(string); ok {
				opts.From = s
			} else {
				extra(key, v)
			}
		case "gas", "gasPrice", "timeoutBlocks":
			q, err := types.ParseFlexibleUint64(v)
			if err != nil {
				// 例如 web3.utils.toWei(...) 之类的表达式
				extra(key, v)
				continue
			}
			switch key {
			case "gas":
				opts.Gas = q.Value()
			case "gasPrice":
				opts.GasPrice = q.Value()
			default:
				opts.TimeoutBlocks = q.Value()
			}
		case "skipDryRun":
			if b, ok := v.(bool); ok {
				opts.SkipDryRun = b
			} else {
				extra(key, v)
			}
		case "websockets":
			if b, ok := v.(bool); ok {
				opts.Websockets = b
			} else {
				extra(key, v)
			}
		case "provider":
			opts.Provider = decomposeProvider(v)
		default:
			extra(key, v)
		}
	}
	return opts
}
