package simulator

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Process 已启动的子进程
type Process interface {
	PID() int
	Signal(sig os.Signal) error
	Kill() error
	// Done 在进程退出后关闭
	Done() <-chan struct{}
	// Err 返回退出错误，仅在 Done 关闭后有意义
	Err() error
}

// Command 启动参数
type Command struct {
	Binary string
	Args   []string
	Dir    string
	Output io.Writer // 同时接收 stdout 与 stderr
}

// Launcher 负责真正创建子进程，测试中可替换
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (Process, error)
}

// ExecLauncher 通过 os/exec 启动进程
type ExecLauncher struct{}

// Launch 启动进程。进程生命周期不绑定 ctx，由 Supervisor 负责结束。
func (ExecLauncher) Launch(ctx context.Context, c Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(c.Binary, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = c.Output
	cmd.Stderr = c.Output
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Binary, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
