package tokenizer

import (
	"fmt"

	tkz "github.com/tiktoken-go/tokenizer"

	"github.com/BaSui01/tokentally/types"
)

// OfflineTokenizer 基于 tiktoken-go/tokenizer，词表编译进二进制，计数过程不访问网络。
type OfflineTokenizer struct {
	model string
	codec tkz.Codec
}

// NewOfflineTokenizer 为给定模型创建离线分词器.
// encoding 非空时按编码名（如 "o200k_base"）加载。
func NewOfflineTokenizer(model, encoding string) (*OfflineTokenizer, error) {
	var (
		codec tkz.Codec
		err   error
	)
	if encoding != "" {
		codec, err = tkz.Get(tkz.Encoding(encoding))
	} else {
		codec, err = tkz.ForModel(tkz.Model(model))
	}
	if err != nil {
		return nil, types.NewError(types.ErrTokenizerUnavailable,
			fmt.Sprintf("no embedded vocabulary for model %q encoding %q", model, encoding)).WithCause(err)
	}
	return &OfflineTokenizer{model: model, codec: codec}, nil
}

// Encode 把特殊 token 的字面量（如 "<|endoftext|>"）当作普通文本编码。
func (t *OfflineTokenizer) Encode(text string) ([]int, error) {
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return nil, types.NewError(types.ErrTokenizerError, "encode failed").WithCause(err)
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out, nil
}

func (t *OfflineTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return 0, types.NewError(types.ErrTokenizerError, "encode failed").WithCause(err)
	}
	return len(ids), nil
}

func (t *OfflineTokenizer) Name() string {
	return fmt.Sprintf("offline[%s]", t.codec.GetName())
}
