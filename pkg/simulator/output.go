package simulator

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// 单行最长保留字节数，超过后强制断行
const maxPartialLine = 4096

type ringBuffer struct {
	lines []string
	next  int
	full  bool
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{lines: make([]string, size)}
}

func (r *ringBuffer) add(line string) {
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ringBuffer) snapshot() []string {
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}

// outputSink 按行切分子进程输出，保留最近若干行并检测就绪标记
type outputSink struct {
	mu      sync.Mutex
	partial []byte
	ring    *ringBuffer
	file    io.WriteCloser
	logger  *zap.Logger

	marker    string
	ready     chan struct{}
	readyOnce sync.Once
}

func newOutputSink(file io.WriteCloser, logger *zap.Logger) *outputSink {
	return &outputSink{
		ring:   newRingBuffer(diagnosticLines),
		file:   file,
		logger: logger,
		marker: ReadyMarker,
		ready:  make(chan struct{}),
	}
}

func (s *outputSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		if _, err := s.file.Write(p); err != nil {
			s.logger.Debug("failed to write simulator log file", zap.Error(err))
		}
	}

	s.partial = append(s.partial, p...)
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		s.addLine(string(s.partial[:i]))
		s.partial = s.partial[i+1:]
	}
	if len(s.partial) > maxPartialLine {
		s.addLine(string(s.partial))
		s.partial = s.partial[:0]
	}
	return len(p), nil
}

func (s *outputSink) addLine(line string) {
	line = strings.TrimRight(line, "\r")
	s.ring.add(line)
	s.logger.Debug("simulator output", zap.String("line", line))
	if strings.Contains(line, s.marker) {
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

// Ready 在输出中出现就绪标记后关闭
func (s *outputSink) Ready() <-chan struct{} {
	return s.ready
}

// Lines 返回最近的输出行，包含尚未换行的残余部分
func (s *outputSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.ring.snapshot()
	if len(s.partial) > 0 {
		lines = append(lines, string(s.partial))
	}
	return lines
}

func (s *outputSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
