// Package workflow 根据合约 ABI 与字节码生成 Logic Apps 工作流定义
package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v2"
)

const (
	workflowSchema        = "https://schema.management.azure.com/providers/Microsoft.Logic/schemas/2016-06-01/workflowdefinition.json#"
	defaultConnectionName = "ethereumblockchain"
)

// GeneratedFile 生成的一个文件
type GeneratedFile struct {
	OutputFolder  string `json:"outputFolder" yaml:"outputFolder"`
	FileName      string `json:"fileName" yaml:"fileName"`
	GeneratedCode string `json:"generatedCode" yaml:"-"`
}

// Path 返回文件完整路径
func (f GeneratedFile) Path() string {
	return filepath.Join(f.OutputFolder, f.FileName)
}

// Generator 把 (abi, bytecode, contractName, outputDir) 转换为文件列表
type Generator interface {
	Generate(abiJSON, bytecode, contractName, outputDir string) ([]GeneratedFile, error)
}

// Manifest 生成结果的清单
type Manifest struct {
	Contract     string          `yaml:"contract"`
	BytecodeHash string          `yaml:"bytecodeHash,omitempty"`
	Workflows    []ManifestEntry `yaml:"workflows"`
}

// ManifestEntry 清单中的一个工作流
type ManifestEntry struct {
	Name      string `yaml:"name"`
	File      string `yaml:"file"`
	Kind      string `yaml:"kind"`
	Signature string `yaml:"signature,omitempty"`
}

const (
	KindDeploy  = "deploy"
	KindExecute = "execute"
	KindQuery   = "query"
	KindEvent   = "event"
)

// LogicAppGenerator 为每个函数、事件生成一个 Logic App 工作流，外加部署工作流与清单
type LogicAppGenerator struct {
	ConnectionName string
}

func (g LogicAppGenerator) connection() string {
	if g.ConnectionName != "" {
		return g.ConnectionName
	}
	return defaultConnectionName
}

// Generate 生成工作流文件，结果按文件名排序，清单在最后
func (g LogicAppGenerator) Generate(abiJSON, bytecode, contractName, outputDir string) ([]GeneratedFile, error) {
	if strings.TrimSpace(contractName) == "" {
		return nil, fmt.Errorf("contract name is required")
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid abi: %w", err)
	}

	var code []byte
	if bytecode = strings.TrimSpace(bytecode); bytecode != "" && bytecode != "0x" {
		if !strings.HasPrefix(bytecode, "0x") {
			bytecode = "0x" + bytecode
		}
		if code, err = hexutil.Decode(bytecode); err != nil {
			return nil, fmt.Errorf("invalid bytecode: %w", err)
		}
	}

	folder := filepath.Join(outputDir, contractName)
	manifest := Manifest{Contract: contractName}
	var files []GeneratedFile
	add := func(name, kind, signature string, definition map[string]interface{}) error {
		data, err := json.MarshalIndent(definition, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", name, err)
		}
		file := GeneratedFile{OutputFolder: folder, FileName: name + ".logicapp.json", GeneratedCode: string(data) + "\n"}
		files = append(files, file)
		manifest.Workflows = append(manifest.Workflows, ManifestEntry{Name: name, File: file.FileName, Kind: kind, Signature: signature})
		return nil
	}

	if len(code) > 0 {
		manifest.BytecodeHash = crypto.Keccak256Hash(code).Hex()
		if err := add(contractName+"-Deploy", KindDeploy, "", g.deployWorkflow(parsed.Constructor, hexutil.Encode(code))); err != nil {
			return nil, err
		}
	}

	for _, name := range sortedKeys(parsed.Methods) {
		method := parsed.Methods[name]
		kind := KindExecute
		if method.IsConstant() {
			kind = KindQuery
		}
		if err := add(contractName+"-"+method.Name, kind, method.Sig, g.functionWorkflow(method, kind)); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedKeys(parsed.Events) {
		event := parsed.Events[name]
		if err := add(contractName+"-"+event.Name+"-Event", KindEvent, event.Sig, g.eventWorkflow(event)); err != nil {
			return nil, err
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].FileName < files[j].FileName })
	sort.Slice(manifest.Workflows, func(i, j int) bool { return manifest.Workflows[i].File < manifest.Workflows[j].File })

	out, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to render manifest: %w", err)
	}
	files = append(files, GeneratedFile{OutputFolder: folder, FileName: contractName + ".workflows.yaml", GeneratedCode: string(out)})
	return files, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (g LogicAppGenerator) connectionRef() map[string]interface{} {
	return map[string]interface{}{
		"connection": map[string]interface{}{
			"name": "@parameters('$connections')['" + g.connection() + "']['connectionId']",
		},
	}
}

func definition(triggers, actions map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"definition": map[string]interface{}{
			"$schema":        workflowSchema,
			"contentVersion": "1.0.0.0",
			"parameters": map[string]interface{}{
				"$connections": map[string]interface{}{"defaultValue": map[string]interface{}{}, "type": "Object"},
			},
			"triggers": triggers,
			"actions":  actions,
			"outputs":  map[string]interface{}{},
		},
	}
}

func requestTrigger(args abi.Arguments) map[string]interface{} {
	properties := make(map[string]interface{}, len(args))
	required := make([]string, 0, len(args))
	for i, arg := range args {
		name := argName(arg, i)
		properties[name] = jsonSchemaType(arg.Type)
		required = append(required, name)
	}
	return map[string]interface{}{
		"manual": map[string]interface{}{
			"type": "Request",
			"kind": "Http",
			"inputs": map[string]interface{}{
				"schema": map[string]interface{}{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		},
	}
}

func bodyFromTrigger(args abi.Arguments) map[string]interface{} {
	body := make(map[string]interface{}, len(args))
	for i, arg := range args {
		name := argName(arg, i)
		body[name] = "@triggerBody()?['" + name + "']"
	}
	return body
}

func (g LogicAppGenerator) apiAction(method, path string, body map[string]interface{}) map[string]interface{} {
	inputs := map[string]interface{}{
		"host":   g.connectionRef(),
		"method": method,
		"path":   path,
	}
	if body != nil {
		inputs["body"] = body
	}
	return map[string]interface{}{"type": "ApiConnection", "inputs": inputs, "runAfter": map[string]interface{}{}}
}

func responseAction(after string) map[string]interface{} {
	return map[string]interface{}{
		"type": "Response",
		"kind": "Http",
		"inputs": map[string]interface{}{
			"statusCode": 200,
			"body":       "@body('" + after + "')",
		},
		"runAfter": map[string]interface{}{after: []string{"Succeeded"}},
	}
}

func (g LogicAppGenerator) deployWorkflow(constructor abi.Method, bytecode string) map[string]interface{} {
	body := bodyFromTrigger(constructor.Inputs)
	body["bytecode"] = bytecode
	return definition(requestTrigger(constructor.Inputs), map[string]interface{}{
		"Deploy_smart_contract": g.apiAction("post", "/contract/deploy", body),
		"Response":              responseAction("Deploy_smart_contract"),
	})
}

func (g LogicAppGenerator) functionWorkflow(method abi.Method, kind string) map[string]interface{} {
	actionName := "Execute_smart_contract_function"
	path := "/contract/functions/" + method.RawName + "/execute"
	if kind == KindQuery {
		actionName = "Query_smart_contract_function"
		path = "/contract/functions/" + method.RawName + "/query"
	}
	return definition(requestTrigger(method.Inputs), map[string]interface{}{
		actionName: g.apiAction("post", path, bodyFromTrigger(method.Inputs)),
		"Response": responseAction(actionName),
	})
}

func (g LogicAppGenerator) eventWorkflow(event abi.Event) map[string]interface{} {
	trigger := g.apiAction("get", "/contract/events/"+event.RawName+"/trigger", nil)
	delete(trigger, "runAfter")
	trigger["recurrence"] = map[string]interface{}{"frequency": "Minute", "interval": 3}
	return definition(
		map[string]interface{}{"When_a_smart_contract_event_occurs": trigger},
		map[string]interface{}{},
	)
}

func argName(arg abi.Argument, i int) string {
	if arg.Name != "" {
		return arg.Name
	}
	return fmt.Sprintf("arg%d", i)
}

// jsonSchemaType ABI 类型到 JSON schema；大整数以字符串传递
func jsonSchemaType(t abi.Type) map[string]interface{} {
	switch t.T {
	case abi.BoolTy:
		return map[string]interface{}{"type": "boolean"}
	case abi.IntTy, abi.UintTy:
		if t.Size <= 32 {
			return map[string]interface{}{"type": "integer"}
		}
		return map[string]interface{}{"type": "string"}
	case abi.SliceTy, abi.ArrayTy:
		return map[string]interface{}{"type": "array", "items": jsonSchemaType(*t.Elem)}
	case abi.TupleTy:
		return map[string]interface{}{"type": "object"}
	}
	return map[string]interface{}{"type": "string"}
}

// WriteFiles 把生成的文件写入磁盘
func WriteFiles(files []GeneratedFile) error {
	for _, f := range files {
		if err := os.MkdirAll(f.OutputFolder, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", f.OutputFolder, err)
		}
		if err := os.WriteFile(f.Path(), []byte(f.GeneratedCode), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Path(), err)
		}
	}
	return nil
}
