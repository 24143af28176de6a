package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

const metaCoinABI = `[
  {"inputs":[],"payable":false,"stateMutability":"nonpayable","type":"constructor"},
  {"anonymous":false,"inputs":[{"indexed":true,"name":"_from","type":"address"},{"indexed":true,"name":"_to","type":"address"},{"indexed":false,"name":"_value","type":"uint256"}],"name":"Transfer","type":"event"},
  {"constant":false,"inputs":[{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"}],"name":"sendCoin","outputs":[{"name":"sufficient","type":"bool"}],"payable":false,"stateMutability":"nonpayable","type":"function"},
  {"constant":true,"inputs":[{"name":"addr","type":"address"}],"name":"getBalance","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}
]`

func fileNames(files []GeneratedFile) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.FileName
	}
	return names
}

func TestGenerateLogicApps(t *testing.T) {
	out := t.TempDir()
	files, err := LogicAppGenerator{}.Generate(metaCoinABI, "0x6080604052", "MetaCoin", out)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"MetaCoin-Deploy.logicapp.json",
		"MetaCoin-Transfer-Event.logicapp.json",
		"MetaCoin-getBalance.logicapp.json",
		"MetaCoin-sendCoin.logicapp.json",
		"MetaCoin.workflows.yaml",
	}, fileNames(files))
	for _, f := range files {
		assert.Equal(t, filepath.Join(out, "MetaCoin"), f.OutputFolder)
	}

	var send map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(files[3].GeneratedCode), &send))
	def := send["definition"].(map[string]interface{})
	actions := def["actions"].(map[string]interface{})
	execute := actions["Execute_smart_contract_function"].(map[string]interface{})
	inputs := execute["inputs"].(map[string]interface{})
	assert.Equal(t, "/contract/functions/sendCoin/execute", inputs["path"])
	assert.Equal(t, "@triggerBody()?['receiver']", inputs["body"].(map[string]interface{})["receiver"])

	schema := def["triggers"].(map[string]interface{})["manual"].(map[string]interface{})["inputs"].(map[string]interface{})["schema"].(map[string]interface{})
	props := schema["properties"].(map[string]interface{})
	assert.Equal(t, "string", props["amount"].(map[string]interface{})["type"], "uint256 is passed as a string")
	assert.Equal(t, []interface{}{"receiver", "amount"}, schema["required"])

	assert.Contains(t, files[2].GeneratedCode, "/contract/functions/getBalance/query")
	assert.Contains(t, files[1].GeneratedCode, "/contract/events/Transfer/trigger")
	assert.Contains(t, files[0].GeneratedCode, `"bytecode": "0x6080604052"`)

	var manifest Manifest
	require.NoError(t, yaml.Unmarshal([]byte(files[4].GeneratedCode), &manifest))
	assert.Equal(t, "MetaCoin", manifest.Contract)
	assert.NotEmpty(t, manifest.BytecodeHash)
	require.Len(t, manifest.Workflows, 4)
	assert.Equal(t, KindDeploy, manifest.Workflows[0].Kind)
	assert.Equal(t, KindEvent, manifest.Workflows[1].Kind)
	assert.Equal(t, KindQuery, manifest.Workflows[2].Kind)
	assert.Equal(t, "getBalance(address)", manifest.Workflows[2].Signature)
	assert.Equal(t, KindExecute, manifest.Workflows[3].Kind)

	require.NoError(t, WriteFiles(files))
	data, err := os.ReadFile(filepath.Join(out, "MetaCoin", "MetaCoin-sendCoin.logicapp.json"))
	require.NoError(t, err)
	assert.Equal(t, files[3].GeneratedCode, string(data))
}

func TestGenerateWithoutBytecode(t *testing.T) {
	files, err := LogicAppGenerator{ConnectionName: "abs"}.Generate(metaCoinABI, "", "MetaCoin", "out")
	require.NoError(t, err)
	assert.NotContains(t, fileNames(files), "MetaCoin-Deploy.logicapp.json")
	assert.Contains(t, files[0].GeneratedCode, "['abs']")
}

func TestGenerateErrors(t *testing.T) {
	g := LogicAppGenerator{}
	_, err := g.Generate("not json", "", "MetaCoin", "out")
	assert.Error(t, err)
	_, err = g.Generate(metaCoinABI, "0xzz", "MetaCoin", "out")
	assert.Error(t, err)
	_, err = g.Generate(metaCoinABI, "", " ", "out")
	assert.Error(t, err)
}
