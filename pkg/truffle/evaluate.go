package truffle

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"
)

// 引用展开的最大深度，防止 const a = b; const b = a 之类的循环
const maxBindingDepth = 16

// Object 保持键顺序的对象字面量求值结果
type Object struct {
	keys   []string
	values map[string]interface{}
}

func newObject() *Object {
	return &Object{values: make(map[string]interface{})}
}

// Set 写入键值，重复键保留首次出现的位置、采用最后一次的值（与 JS 语义一致）
func (o *Object) Set(key string, v interface{}) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get 读取键值
func (o *Object) Get(key string) (interface{}, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Keys 按源码顺序返回键
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Map 转换成普通 map，Expression 以源码文本表示
func (o *Object) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(o.keys))
	for _, k := range o.keys {
		out[k] = plain(o.values[k])
	}
	return out
}

func plain(v interface{}) interface{} {
	switch x := v.(type) {
	case *Object:
		return x.Map()
	case []interface{}:
		out := make([]interface{}, len(x))
		for i := range x {
			out[i] = plain(x[i])
		}
		return out
	case *Expression:
		return x.Source
	default:
		return v
	}
}

// Expression 是无法（也不应该）求值的表达式的惰性替身：调用、new、函数、成员访问等。
// 只保留源码与其中出现的字符串字面量，不执行任何 I/O。
type Expression struct {
	Source   string
	Args     []interface{} // 最外层调用/new 的参数求值结果
	Literals []string      // 表达式内出现的全部字符串字面量（深度优先）
}

var quotedString = regexp.MustCompile("\"((?:[^\"\\\\]|\\\\.)*)\"|'((?:[^'\\\\]|\\\\.)*)'|`([^`$\\\\]*)`")

type evaluator struct {
	src      string
	bindings map[string]ast.Expression
	// 已成功求值的节点，避免嵌套表达式被反复求值
	cache map[ast.Expression]interface{}
}

func newEvaluator(src string, program *ast.Program) *evaluator {
	ev := &evaluator{
		src:      src,
		bindings: make(map[string]ast.Expression),
		cache:    make(map[ast.Expression]interface{}),
	}
	for _, stmt := range program.Body {
		var list []*ast.Binding
		switch s := stmt.(type) {
		case *ast.VariableStatement:
			list = s.List
		case *ast.LexicalDeclaration:
			list = s.List
		}
		for _, b := range list {
			id, ok := b.Target.(*ast.Identifier)
			if !ok || b.Initializer == nil {
				continue
			}
			ev.bindings[id.Name.String()] = b.Initializer
		}
	}
	return ev
}

// source 截取节点对应的源码；goja 的 Idx 从 1 开始
func (e *evaluator) source(n ast.Node) string {
	start := int(n.Idx0()) - 1
	end := int(n.Idx1()) - 1
	if start < 0 {
		start = 0
	}
	if end > len(e.src) {
		end = len(e.src)
	}
	if start >= end {
		return ""
	}
	return e.src[start:end]
}

func (e *evaluator) eval(expr ast.Expression) (interface{}, error) {
	return e.evalDepth(expr, 0)
}

func (e *evaluator) evalDepth(expr ast.Expression, depth int) (interface{}, error) {
	if expr == nil {
		return nil, nil
	}
	if v, ok := e.cache[expr]; ok {
		return v, nil
	}
	v, err := e.evalNode(expr, depth)
	if err != nil {
		return nil, err
	}
	e.cache[expr] = v
	return v, nil
}

func (e *evaluator) evalNode(expr ast.Expression, depth int) (interface{}, error) {
	if depth > maxBindingDepth {
		return nil, fmt.Errorf("%w: reference chain too deep", ErrConfigParse)
	}

	switch x := expr.(type) {
	case *ast.ObjectLiteral:
		return e.evalObject(x, depth)
	case *ast.ArrayLiteral:
		out := make([]interface{}, 0, len(x.Value))
		for _, item := range x.Value {
			v, err := e.evalDepth(item, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *ast.StringLiteral:
		return x.Value.String(), nil
	case *ast.NumberLiteral:
		return x.Value, nil
	case *ast.BooleanLiteral:
		return x.Value, nil
	case *ast.NullLiteral:
		return nil, nil
	case *ast.TemplateLiteral:
		if x.Tag == nil && len(x.Expressions) == 0 {
			s := ""
			for _, el := range x.Elements {
				s += el.Parsed.String()
			}
			return s, nil
		}
	case *ast.Identifier:
		name := x.Name.String()
		if name == "undefined" {
			return nil, nil
		}
		if init, ok := e.bindings[name]; ok {
			return e.evalDepth(init, depth+1)
		}
	case *ast.UnaryExpression:
		if x.Postfix {
			break
		}
		operand, err := e.evalDepth(x.Operand, depth)
		if err != nil {
			return nil, err
		}
		switch x.Operator {
		case token.MINUS:
			switch n := operand.(type) {
			case int64:
				return -n, nil
			case float64:
				return -n, nil
			}
		case token.PLUS:
			switch operand.(type) {
			case int64, float64:
				return operand, nil
			}
		case token.NOT:
			if b, ok := operand.(bool); ok {
				return !b, nil
			}
		}
	case *ast.BinaryExpression:
		if x.Operator != token.PLUS {
			break
		}
		left, err := e.evalDepth(x.Left, depth)
		if err != nil {
			return nil, err
		}
		right, err := e.evalDepth(x.Right, depth)
		if err != nil {
			return nil, err
		}
		if v, ok := add(left, right); ok {
			return v, nil
		}
	}

	return e.inert(expr, depth), nil
}

func (e *evaluator) evalObject(x *ast.ObjectLiteral, depth int) (*Object, error) {
	obj := newObject()
	for _, prop := range x.Value {
		switch p := prop.(type) {
		case *ast.PropertyKeyed:
			key, err := e.propertyKey(p, depth)
			if err != nil {
				return nil, err
			}
			v, err := e.evalDepth(p.Value, depth)
			if err != nil {
				return nil, err
			}
			obj.Set(key, v)
		case *ast.PropertyShort:
			name := p.Name.Name.String()
			v, err := e.evalDepth(&p.Name, depth)
			if err != nil {
				return nil, err
			}
			obj.Set(name, v)
		case *ast.SpreadElement:
			v, err := e.evalDepth(p.Expression, depth)
			if err != nil {
				return nil, err
			}
			spread, ok := v.(*Object)
			if !ok {
				return nil, fmt.Errorf("%w: cannot spread %q", ErrConfigParse, e.source(p.Expression))
			}
			for _, k := range spread.keys {
				obj.Set(k, spread.values[k])
			}
		default:
			return nil, fmt.Errorf("%w: unsupported property %T", ErrConfigParse, prop)
		}
	}
	return obj, nil
}

func (e *evaluator) propertyKey(p *ast.PropertyKeyed, depth int) (string, error) {
	switch k := p.Key.(type) {
	case *ast.StringLiteral:
		if !p.Computed {
			return k.Value.String(), nil
		}
	case *ast.Identifier:
		if !p.Computed {
			return k.Name.String(), nil
		}
	case *ast.NumberLiteral:
		if !p.Computed {
			return k.Literal, nil
		}
	}
	v, err := e.evalDepth(p.Key, depth)
	if err != nil {
		return "", err
	}
	switch kv := v.(type) {
	case string:
		return kv, nil
	case int64:
		return strconv.FormatInt(kv, 10), nil
	}
	return "", fmt.Errorf("%w: property key %q cannot be resolved", ErrConfigParse, e.source(p.Key))
}

// inert 为不可求值的表达式生成替身
func (e *evaluator) inert(expr ast.Expression, depth int) *Expression {
	out := &Expression{Source: e.source(expr)}

	var args []ast.Expression
	switch x := expr.(type) {
	case *ast.CallExpression:
		args = x.ArgumentList
	case *ast.NewExpression:
		args = x.ArgumentList
	}
	for _, arg := range args {
		v, err := e.evalDepth(arg, depth+1)
		if err != nil {
			v = &Expression{Source: e.source(arg)}
		}
		out.Args = append(out.Args, v)
	}

	e.collectLiterals(expr, depth, &out.Literals)
	return out
}

func (e *evaluator) collectLiterals(expr ast.Expression, depth int, acc *[]string) {
	if depth > maxBindingDepth {
		return
	}
	switch x := expr.(type) {
	case nil:
	case *ast.StringLiteral:
		*acc = append(*acc, x.Value.String())
	case *ast.TemplateLiteral:
		if len(x.Expressions) == 0 {
			s := ""
			for _, el := range x.Elements {
				s += el.Parsed.String()
			}
			*acc = append(*acc, s)
			return
		}
		for _, sub := range x.Expressions {
			e.collectLiterals(sub, depth, acc)
		}
	case *ast.Identifier:
		// 只展开绑定的初始值，未绑定的标识符（process、mnemonic 等）没有字面量
		init, ok := e.bindings[x.Name.String()]
		if !ok {
			return
		}
		if s, ok := e.constString(init, depth+1); ok {
			*acc = append(*acc, s)
			return
		}
		e.collectLiterals(init, depth+1, acc)
	case *ast.CallExpression:
		// callee 一般是 require 引入的标识符，不展开
		if dot, ok := x.Callee.(*ast.DotExpression); ok {
			if _, isID := dot.Left.(*ast.Identifier); !isID {
				e.collectLiterals(dot.Left, depth, acc)
			}
		}
		for _, arg := range x.ArgumentList {
			e.collectLiterals(arg, depth, acc)
		}
	case *ast.NewExpression:
		for _, arg := range x.ArgumentList {
			e.collectLiterals(arg, depth, acc)
		}
	case *ast.DotExpression:
		e.collectLiterals(x.Left, depth, acc)
	case *ast.BinaryExpression:
		// 只对子节点求值：本节点可能正是调用方无法求值的那个
		if x.Operator == token.PLUS {
			left, lerr := e.evalDepth(x.Left, depth)
			right, rerr := e.evalDepth(x.Right, depth)
			if lerr == nil && rerr == nil {
				if v, ok := add(left, right); ok {
					if s, ok := v.(string); ok {
						*acc = append(*acc, s)
						return
					}
				}
			}
		}
		e.collectLiterals(x.Left, depth, acc)
		e.collectLiterals(x.Right, depth, acc)
	case *ast.ArrayLiteral:
		for _, item := range x.Value {
			e.collectLiterals(item, depth, acc)
		}
	case *ast.ObjectLiteral:
		for _, prop := range x.Value {
			if kp, ok := prop.(*ast.PropertyKeyed); ok {
				e.collectLiterals(kp.Value, depth, acc)
			}
		}
	case *ast.NumberLiteral, *ast.BooleanLiteral, *ast.NullLiteral:
	default:
		// 函数体等复杂结构直接扫描源码中的字符串字面量
		for _, m := range quotedString.FindAllStringSubmatch(e.source(expr), -1) {
			for _, g := range m[1:] {
				if g != "" {
					*acc = append(*acc, g)
					break
				}
			}
		}
	}
}

// constString 表达式能静态求值为字符串时返回该字符串
func (e *evaluator) constString(expr ast.Expression, depth int) (string, bool) {
	v, err := e.evalDepth(expr, depth)
	if err != nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func add(left, right interface{}) (interface{}, bool) {
	switch l := left.(type) {
	case string:
		switch r := right.(type) {
		case string:
			return l + r, true
		case int64:
			return l + strconv.FormatInt(r, 10), true
		case float64:
			return l + strconv.FormatFloat(r, 'f', -1, 64), true
		}
	case int64:
		switch r := right.(type) {
		case int64:
			return l + r, true
		case float64:
			return float64(l) + r, true
		case string:
			return strconv.FormatInt(l, 10) + r, true
		}
	case float64:
		switch r := right.(type) {
		case int64:
			return l + float64(r), true
		case float64:
			return l + r, true
		case string:
			return strconv.FormatFloat(l, 'f', -1, 64) + r, true
		}
	}
	return nil, false
}
