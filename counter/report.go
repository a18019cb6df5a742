package counter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BaSui01/tokentally/archive"
)

// RoleUnknown 是没有 author.role 的消息节点在 ByRole 中的键
const RoleUnknown = "unknown"

// Report 是一次完整统计的结果
type Report struct {
	RunID      string
	Model      string
	Tokenizer  string
	PartPolicy archive.PartPolicy

	// Total 是全部消息的 token 总数
	Total         int
	Conversations int
	Messages      int
	SkippedParts  int

	// ByRole 按 author.role 汇总 token 数
	ByRole map[string]int
	// PerConversation 按文档顺序列出每个对话的小计
	PerConversation []ConversationTotal

	StartedAt time.Time
	Duration  time.Duration
}

// ConversationTotal 单个对话的小计
type ConversationTotal struct {
	Index        int    `json:"index"`
	ID           string `json:"id,omitempty"`
	Title        string `json:"title,omitempty"`
	Tokens       int    `json:"tokens"`
	Messages     int    `json:"messages"`
	SkippedParts int    `json:"skipped_parts,omitempty"`
}

func newReport(runID, model, tok string, policy archive.PartPolicy, start time.Time) *Report {
	return &Report{
		RunID:           runID,
		Model:           model,
		Tokenizer:       tok,
		PartPolicy:      policy,
		ByRole:          make(map[string]int),
		PerConversation: make([]ConversationTotal, 0),
		StartedAt:       start,
	}
}

func (r *Report) add(ct ConversationTotal) {
	r.Total += ct.Tokens
	r.Conversations++
	r.Messages += ct.Messages
	r.SkippedParts += ct.SkippedParts
	r.PerConversation = append(r.PerConversation, ct)
}

// =============================================================================
// 📤 输出
// =============================================================================

// WriteText 输出唯一一行 "Total tokens used: <N>"
func WriteText(w io.Writer, r *Report) error {
	_, err := fmt.Fprintf(w, "Total tokens used: %d\n", r.Total)
	return err
}

type jsonReport struct {
	RunID           string              `json:"run_id,omitempty"`
	Model           string              `json:"model"`
	Tokenizer       string              `json:"tokenizer"`
	PartPolicy      string              `json:"part_policy"`
	TotalTokens     int                 `json:"total_tokens"`
	Conversations   int                 `json:"conversations"`
	Messages        int                 `json:"messages"`
	SkippedParts    int                 `json:"skipped_parts"`
	ByRole          map[string]int      `json:"by_role"`
	PerConversation []ConversationTotal `json:"per_conversation"`
	StartedAt       time.Time           `json:"started_at"`
	DurationMS      float64             `json:"duration_ms"`
}

// WriteJSON 以缩进 JSON 输出完整报告
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		RunID:           r.RunID,
		Model:           r.Model,
		Tokenizer:       r.Tokenizer,
		PartPolicy:      string(r.PartPolicy),
		TotalTokens:     r.Total,
		Conversations:   r.Conversations,
		Messages:        r.Messages,
		SkippedParts:    r.SkippedParts,
		ByRole:          r.ByRole,
		PerConversation: r.PerConversation,
		StartedAt:       r.StartedAt.UTC(),
		DurationMS:      float64(r.Duration) / float64(time.Millisecond),
	})
}

// Writer 按格式名选择输出函数
type Writer func(io.Writer, *Report) error

// WriterFor 返回格式对应的输出函数，未知格式返回 false
func WriterFor(format string) (Writer, bool) {
	switch strings.ToLower(format) {
	case "", "text":
		return WriteText, true
	case "json":
		return WriteJSON, true
	}
	return nil, false
}
