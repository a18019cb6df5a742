package archive

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/tokentally/types"
)

// DefaultPath 是未配置路径时读取的导出文件。
const DefaultPath = "conversations.json"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Archive 是加载到内存中的对话导出，根节点为对话记录数组。只读。
type Archive struct {
	raw  []byte
	root gjson.Result
}

// Conversation 是导出中的一条对话记录。
type Conversation struct {
	// Index 记录在数组中的位置（从 0 开始）
	Index int
	// ID 来自 "id" 或 "conversation_id"，缺失时为空
	ID string
	// Title 来自 "title"，缺失时为空
	Title string

	node gjson.Result
}

// Load 读取并解析 path 处的导出文件。
// 文件不可读返回 ARCHIVE_READ，内容不是合法 JSON 或根不是数组返回 ARCHIVE_PARSE。
func Load(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrArchiveRead,
			fmt.Sprintf("read archive %s", path)).WithCause(err)
	}

	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Parse 解析内存中的导出内容。
func Parse(data []byte) (*Archive, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	// gjson 不校验字符串内的编码，JSON 文本必须是 UTF-8
	if !utf8.Valid(data) {
		return nil, types.NewError(types.ErrArchiveParse, "content is not valid UTF-8")
	}
	if !gjson.ValidBytes(data) {
		return nil, types.NewError(types.ErrArchiveParse, "content is not well-formed JSON")
	}

	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, types.Errorf(types.ErrArchiveParse,
			"root must be an array of conversations, got %s", kindOf(root))
	}

	return &Archive{raw: data, root: root}, nil
}

// Len 返回对话记录数。
func (a *Archive) Len() int {
	n := 0
	a.root.ForEach(func(_, _ gjson.Result) bool {
		n++
		return true
	})
	return n
}

// Size 返回导出内容的字节数。
func (a *Archive) Size() int {
	return len(a.raw)
}

// Conversations 按文档顺序访问每条对话记录，fn 返回错误时停止并返回该错误。
func (a *Archive) Conversations(fn func(conv Conversation) error) error {
	var err error
	idx := 0
	a.root.ForEach(func(_, node gjson.Result) bool {
		conv := Conversation{
			Index: idx,
			ID:    stringField(node, "id"),
			Title: stringField(node, "title"),
			node:  node,
		}
		if conv.ID == "" {
			conv.ID = stringField(node, "conversation_id")
		}
		idx++

		err = fn(conv)
		return err == nil
	})
	return err
}

// String 返回用于日志与错误信息的对话标识。
func (c Conversation) String() string {
	if c.ID != "" {
		return fmt.Sprintf("#%d (%s)", c.Index, c.ID)
	}
	return fmt.Sprintf("#%d", c.Index)
}

// objectField 返回对象 r 的 key 字段；r 不是对象时返回不存在的结果。
// 键重复时取最后一次出现的值。
func objectField(r gjson.Result, key string) gjson.Result {
	var v gjson.Result
	if !r.IsObject() {
		return v
	}
	r.ForEach(func(k, val gjson.Result) bool {
		if k.String() == key {
			v = val
		}
		return true
	})
	return v
}

func stringField(r gjson.Result, key string) string {
	v := objectField(r, key)
	if v.Type != gjson.String {
		return ""
	}
	return v.String()
}

func kindOf(r gjson.Result) string {
	switch {
	case r.IsObject():
		return "object"
	case r.IsArray():
		return "array"
	}
	switch r.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Null:
		return "null"
	}
	return "nothing"
}
