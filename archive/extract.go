package archive

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/tokentally/types"
)

// PartPolicy 决定 parts 中非字符串元素（如图片引用对象）的处理方式。
type PartPolicy string

const (
	// PartsSkip 丢弃非字符串元素并计入 Skipped
	PartsSkip PartPolicy = "skip"
	// PartsStringify 使用元素的原始 JSON 文本
	PartsStringify PartPolicy = "stringify"
	// PartsFail 遇到非字符串元素时返回 NON_TEXT_PART 错误
	PartsFail PartPolicy = "fail"
)

// DefaultPartPolicy 是未配置时的策略。
const DefaultPartPolicy = PartsSkip

// ParsePartPolicy 解析策略名称，空字符串返回默认策略。
func ParsePartPolicy(s string) (PartPolicy, error) {
	switch p := PartPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultPartPolicy, nil
	case PartsSkip, PartsStringify, PartsFail:
		return p, nil
	default:
		return "", types.Errorf(types.ErrInvalidConfig,
			"unknown part policy %q (want skip, stringify or fail)", s)
	}
}

// Message 是从一个 mapping 条目提取出的文本。
type Message struct {
	// NodeID 是 mapping 中的键
	NodeID string
	// Role 来自 message.author.role，缺失时为空
	Role string
	// Text 是 parts 以单个空格拼接的结果
	Text string
	// Parts 是参与拼接的片段数
	Parts int
	// Skipped 是按 PartsSkip 丢弃的非字符串片段数
	Skipped int
}

// Extractor 从对话记录中提取每个消息节点的文本。
type Extractor struct {
	policy PartPolicy
}

// NewExtractor 创建提取器，policy 为空时使用 DefaultPartPolicy。
func NewExtractor(policy PartPolicy) *Extractor {
	if policy == "" {
		policy = DefaultPartPolicy
	}
	return &Extractor{policy: policy}
}

// Policy 返回提取器使用的策略。
func (e *Extractor) Policy() PartPolicy {
	return e.policy
}

// Messages 遍历对话的 mapping，为每个条目返回一条 Message。
// 路径 mapping -> <id> -> message -> content -> parts 上任一字段缺失、为 null
// 或类型不符时按空对象/空数组处理，该条目的 Text 为空字符串。
func (e *Extractor) Messages(conv Conversation) ([]Message, error) {
	mapping := objectField(conv.node, "mapping")
	if !mapping.IsObject() {
		return nil, nil
	}

	entries := mappingEntries(mapping)
	msgs := make([]Message, 0, len(entries))
	for _, en := range entries {
		msg, err := e.message(conv, en.id, en.node)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

type mappingEntry struct {
	id   string
	node gjson.Result
}

// mappingEntries 按键首次出现的顺序列出 mapping 条目，重复的键取最后一个值。
func mappingEntries(mapping gjson.Result) []mappingEntry {
	var entries []mappingEntry
	index := make(map[string]int)
	mapping.ForEach(func(key, node gjson.Result) bool {
		id := key.String()
		if i, ok := index[id]; ok {
			entries[i].node = node
			return true
		}
		index[id] = len(entries)
		entries = append(entries, mappingEntry{id: id, node: node})
		return true
	})
	return entries
}

func (e *Extractor) message(conv Conversation, nodeID string, node gjson.Result) (Message, error) {
	msg := Message{NodeID: nodeID}

	message := objectField(node, "message")
	msg.Role = stringField(objectField(message, "author"), "role")

	parts := objectField(objectField(message, "content"), "parts")
	if !parts.IsArray() {
		return msg, nil
	}

	var (
		fragments []string
		err       error
	)
	idx := 0
	parts.ForEach(func(_, part gjson.Result) bool {
		defer func() { idx++ }()

		if part.Type == gjson.String {
			fragments = append(fragments, part.String())
			return true
		}

		switch e.policy {
		case PartsStringify:
			fragments = append(fragments, part.Raw)
		case PartsFail:
			err = types.Errorf(types.ErrNonTextPart,
				"conversation %s node %s: part %d is %s, not text", conv, nodeID, idx, kindOf(part))
			return false
		default:
			msg.Skipped++
		}
		return true
	})
	if err != nil {
		return Message{}, err
	}

	msg.Parts = len(fragments)
	msg.Text = JoinParts(fragments)
	return msg, nil
}

// JoinParts 以单个 ASCII 空格连接片段，首尾不加空格。
func JoinParts(parts []string) string {
	return strings.Join(parts, " ")
}

// Describe 返回对话的简短描述，用于日志。
func Describe(conv Conversation) string {
	if conv.Title == "" {
		return conv.String()
	}
	return fmt.Sprintf("%s %q", conv, conv.Title)
}
