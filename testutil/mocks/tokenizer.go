// MockTokenizer 的分词器测试模拟实现。
//
// 默认按空白分词计数，支持错误注入与调用记录。
package mocks

import (
	"strings"
	"sync"
)

// MockTokenizer 是 tokenizer.Tokenizer 的模拟实现
type MockTokenizer struct {
	mu sync.Mutex

	name  string
	err   error
	calls []string
}

// NewMockTokenizer 创建按空白分词计数的模拟分词器
func NewMockTokenizer() *MockTokenizer {
	return &MockTokenizer{name: "mock"}
}

// WithError 让后续每次 Encode/CountTokens 都返回 err
func (m *MockTokenizer) WithError(err error) *MockTokenizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithName 设置 Name 的返回值
func (m *MockTokenizer) WithName(name string) *MockTokenizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

func (m *MockTokenizer) Encode(text string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, text)
	if m.err != nil {
		return nil, m.err
	}
	words := strings.Fields(text)
	ids := make([]int, len(words))
	for i := range ids {
		ids[i] = i
	}
	return ids, nil
}

func (m *MockTokenizer) CountTokens(text string) (int, error) {
	ids, err := m.Encode(text)
	return len(ids), err
}

func (m *MockTokenizer) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Calls 返回按顺序传入的文本
func (m *MockTokenizer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
