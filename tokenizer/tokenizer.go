package tokenizer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/tokentally/types"
)

// 内置后端名称。
const (
	BackendOffline   = "offline"
	BackendTiktoken  = "tiktoken"
	BackendEstimator = "estimator"
	BackendWords     = "words"
)

// DefaultBackend 是未指定后端时使用的后端，词表内嵌，不访问网络。
const DefaultBackend = BackendOffline

// Tokenizer 是统一的分词接口。
type Tokenizer interface {
	// Encode 将文本转换为 token ID 列表.
	Encode(text string) ([]int, error)

	// CountTokens 返回给定文本的 token 数，等于 Encode 结果的长度.
	CountTokens(text string) (int, error)

	// Name 返回分词器的名称.
	Name() string
}

// Options 描述如何为一个模型构建分词器。
type Options struct {
	// Backend 后端名称，为空时使用 DefaultBackend
	Backend string
	// Model 模型标识，如 "gpt-4o"
	Model string
	// Encoding 显式指定编码（如 "o200k_base"），跳过模型到编码的解析
	Encoding string
}

// Factory 根据 Options 构建分词器.
type Factory func(opts Options) (Tokenizer, error)

// 全局后端注册表.
var (
	backends   = make(map[string]Factory)
	backendsMu sync.RWMutex
)

func init() {
	RegisterBackend(BackendOffline, func(opts Options) (Tokenizer, error) {
		return NewOfflineTokenizer(opts.Model, opts.Encoding)
	})
	RegisterBackend(BackendTiktoken, func(opts Options) (Tokenizer, error) {
		return NewTiktokenTokenizer(opts.Model, opts.Encoding)
	})
	RegisterBackend(BackendEstimator, func(opts Options) (Tokenizer, error) {
		return NewEstimatorTokenizer(opts.Model), nil
	})
	RegisterBackend(BackendWords, func(opts Options) (Tokenizer, error) {
		return NewWordTokenizer(), nil
	})
}

// RegisterBackend 注册（或替换）一个分词器后端.
func RegisterBackend(name string, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
}

// Backends 返回已注册的后端名称，按字母排序.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New 为给定模型构建分词器。
// 未知后端或模型返回 TOKENIZER_UNAVAILABLE 错误。
func New(opts Options) (Tokenizer, error) {
	if opts.Backend == "" {
		opts.Backend = DefaultBackend
	}

	backendsMu.RLock()
	f, ok := backends[opts.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.ErrTokenizerUnavailable,
			"unknown tokenizer backend %q (registered: %v)", opts.Backend, Backends())
	}

	t, err := f(opts)
	if err != nil {
		if types.GetErrorCode(err) != "" {
			return nil, err
		}
		return nil, types.NewError(types.ErrTokenizerUnavailable,
			fmt.Sprintf("backend %s cannot serve model %q", opts.Backend, opts.Model)).WithCause(err)
	}
	return t, nil
}
