// Package ui 提供命令行中的列表选择与文本输入
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
)

// ErrCancelled 用户取消了选择或输入
var ErrCancelled = errors.New("cancelled by user")

// 输入校验失败后允许重试的次数
const maxInputAttempts = 3

// Item 列表中的一个选项
type Item struct {
	Label       string
	Description string
	Value       interface{}
}

// Picker 列表选择与文本输入
type Picker interface {
	QuickPick(ctx context.Context, title string, items []Item) (Item, error)
	InputBox(ctx context.Context, prompt string, validate func(string) error) (string, error)
}

// TerminalPicker 基于 pterm 的交互实现
type TerminalPicker struct {
	MaxHeight int
}

// QuickPick 显示列表并返回用户选中的项
func (p TerminalPicker) QuickPick(ctx context.Context, title string, items []Item) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if len(items) == 0 {
		return Item{}, fmt.Errorf("nothing to pick from")
	}

	options := FormatOptions(items)
	height := p.MaxHeight
	if height <= 0 {
		height = 10
	}
	result, err := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText(title).
		WithMaxHeight(height).
		Show()
	if err != nil {
		return Item{}, interactiveError(err)
	}

	i, ok := MatchOption(options, result)
	if !ok {
		return Item{}, fmt.Errorf("unknown option %q", result)
	}
	return items[i], nil
}

// InputBox 读取一行输入，校验失败时提示并重试
func (p TerminalPicker) InputBox(ctx context.Context, prompt string, validate func(string) error) (string, error) {
	for attempt := 0; attempt < maxInputAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		result, err := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()
		if err != nil {
			return "", interactiveError(err)
		}
		result = strings.TrimSpace(result)
		if result == "" {
			return "", ErrCancelled
		}
		if validate == nil {
			return result, nil
		}
		verr := validate(result)
		if verr == nil {
			return result, nil
		}
		pterm.Error.Println(verr.Error())
	}
	return "", fmt.Errorf("%w: too many invalid attempts", ErrCancelled)
}

func interactiveError(err error) error {
	if err.Error() == "interrupt" {
		return ErrCancelled
	}
	return err
}

// FormatOptions 生成唯一的选项文本
func FormatOptions(items []Item) []string {
	options := make([]string, len(items))
	for i, item := range items {
		label := item.Label
		if item.Description != "" {
			label += "  " + item.Description
		}
		options[i] = fmt.Sprintf("%d) %s", i+1, label)
	}
	return options
}

// MatchOption 返回选中文本对应的下标
func MatchOption(options []string, selected string) (int, bool) {
	for i, option := range options {
		if option == selected {
			return i, true
		}
	}
	return -1, false
}

// RenderTable 以表格形式输出，首行为表头
func RenderTable(w io.Writer, header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)
	out, err := pterm.DefaultTable.WithHasHeader().WithHeaderRowSeparator("-").WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
