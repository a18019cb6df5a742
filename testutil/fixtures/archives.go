// =============================================================================
// 📦 测试数据工厂 - 对话导出样例
// =============================================================================
package fixtures

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Empty 没有任何对话的导出
const Empty = `[]`

// HelloWorld 一条对话、一个消息节点，parts 为 ["Hello", "world"]
const HelloWorld = `[{"mapping": {"1": {"message": {"content": {"parts": ["Hello", "world"]}}}}}]`

// NoMapping 缺少 mapping 字段的对话
const NoMapping = `[{"id": "c-empty", "title": "No mapping here"}]`

// ChatGPTExport 贴近真实导出结构：根节点 message 为 null、system 消息 parts 为 [""]、
// 多模态消息中包含图片引用对象。按词计数共 13 个 token，其中 1 个非文本片段。
const ChatGPTExport = `[
  {
    "title": "Trip planning",
    "create_time": 1700000000.0,
    "id": "c-trip",
    "mapping": {
      "root": {"id": "root", "message": null, "parent": null, "children": ["sys"]},
      "sys": {
        "id": "sys",
        "message": {"author": {"role": "system"}, "content": {"content_type": "text", "parts": [""]}},
        "parent": "root",
        "children": ["u1"]
      },
      "u1": {
        "id": "u1",
        "message": {"author": {"role": "user"}, "content": {"content_type": "text", "parts": ["Plan a trip to Kyoto"]}},
        "parent": "sys",
        "children": ["a1"]
      },
      "a1": {
        "id": "a1",
        "message": {"author": {"role": "assistant"}, "content": {"content_type": "text", "parts": ["Sure, start at Fushimi Inari."]}},
        "parent": "u1",
        "children": []
      }
    }
  },
  {
    "title": "Photo question",
    "conversation_id": "c-photo",
    "mapping": {
      "m1": {
        "message": {
          "author": {"role": "user"},
          "content": {
            "content_type": "multimodal_text",
            "parts": [{"content_type": "image_asset_pointer", "asset_pointer": "file-service://file-abc"}, "What is this?"]
          }
        }
      },
      "m2": {
        "message": {"author": {"role": "tool"}, "content": {"content_type": "code", "text": "print(1)"}}
      }
    }
  }
]`

// ChatGPTExportWords 是 ChatGPTExport 按词计数的总 token 数
const ChatGPTExportWords = 13

// Conversation 构造一条对话记录，每个 nodes 元素成为一个 mapping 条目的 parts
func Conversation(id string, nodes ...[]string) map[string]any {
	mapping := make(map[string]any, len(nodes))
	for i, parts := range nodes {
		mapping[id+"-"+strconv.Itoa(i)] = map[string]any{
			"message": map[string]any{
				"author":  map[string]any{"role": "user"},
				"content": map[string]any{"content_type": "text", "parts": parts},
			},
		}
	}
	return map[string]any{"id": id, "title": "conversation " + id, "mapping": mapping}
}

// Export 将对话记录序列化为导出 JSON
func Export(convs ...map[string]any) string {
	if convs == nil {
		convs = []map[string]any{}
	}
	data, err := json.Marshal(convs)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// AppendPart 在第 conv 条对话的 node 节点的 parts 末尾追加一个元素
func AppendPart(export string, conv int, node string, part any) string {
	path := fmt.Sprintf("%d.mapping.%s.message.content.parts.-1", conv, gjson.Escape(node))
	out, err := sjson.Set(export, path, part)
	if err != nil {
		panic(err)
	}
	return out
}
