package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/tokentally/types"
)

// TiktokenTokenizer 基于 pkoukk/tiktoken-go，BPE 词表在首次使用时下载并缓存
// （缓存目录由 TIKTOKEN_CACHE_DIR 指定）。
type TiktokenTokenizer struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewTiktokenTokenizer 为给定模型创建 tiktoken 分词器.
// encoding 非空时直接按编码名加载，忽略模型解析。
func NewTiktokenTokenizer(model, encoding string) (*TiktokenTokenizer, error) {
	var (
		enc *tiktoken.Tiktoken
		err error
	)
	if encoding != "" {
		enc, err = tiktoken.GetEncoding(encoding)
	} else {
		enc, err = tiktoken.EncodingForModel(model)
	}
	if err != nil {
		return nil, types.NewError(types.ErrTokenizerUnavailable,
			fmt.Sprintf("tiktoken cannot resolve model %q encoding %q", model, encoding)).WithCause(err)
	}

	name := encoding
	if name == "" {
		name = model
	}
	return &TiktokenTokenizer{model: model, encoding: name, enc: enc}, nil
}

// Encode 不启用特殊 token，字面量按普通文本编码。
func (t *TiktokenTokenizer) Encode(text string) ([]int, error) {
	// 特殊 token 按普通文本处理，不做 allowed/disallowed 检查
	return t.enc.Encode(text, nil, nil), nil
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
