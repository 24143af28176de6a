package truffle

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileNames 按优先级排列的配置文件名
var ConfigFileNames = []string{"truffle-config.js", "truffle.js"}

// FindConfigFile 返回项目目录下的配置文件路径
func FindConfigFile(projectDir string) (string, error) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(projectDir, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrConfigNotFound, projectDir)
}

// Load 从磁盘加载并解析项目配置，返回配置与配置文件路径
func Load(projectDir string, defaults Directories) (*Configuration, string, error) {
	path, err := FindConfigFile(projectDir)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, "", err
	}

	cfg, err := Parse(string(data), defaults)
	if err != nil {
		return nil, path, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}

// BuildDirectory 返回构建产物目录的绝对路径
func (c *Configuration) BuildDirectory(projectDir string) string {
	if filepath.IsAbs(c.ContractsBuildDirectory) {
		return c.ContractsBuildDirectory
	}
	return filepath.Join(projectDir, filepath.FromSlash(c.ContractsBuildDirectory))
}
