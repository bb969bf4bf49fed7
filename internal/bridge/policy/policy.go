package policy

import (
	"errors"
	"fmt"
	"time"
)

// DefaultEditWindow Zulip 只允许编辑发送后 60 分钟内的消息
const DefaultEditWindow = 60 * time.Minute

// ErrWindowExceeded 编辑发生在窗口之外，丢弃不转发
// 这是策略边界而不是故障，调用方按信息级别记录日志即可
var ErrWindowExceeded = errors.New("edit window exceeded")

// Policy 编辑窗口策略
// 只处理 Forwarded 状态（存在关联记录）的编辑事件；
// Unknown 状态（无关联记录）由调用方在查询关联时直接丢弃
type Policy struct {
	Window time.Duration
}

// New 创建默认 60 分钟窗口的策略
func New() *Policy {
	return &Policy{Window: DefaultEditWindow}
}

// Evaluate 判定编辑事件是否可以应用
// elapsed = editedAt - sourceSentAt，恰好等于窗口时仍然放行（边界含端点）
func (p *Policy) Evaluate(sourceSentAt, editedAt time.Time) error {
	elapsed := editedAt.Sub(sourceSentAt)
	if elapsed > p.Window {
		return fmt.Errorf("%w: elapsed %s > %s", ErrWindowExceeded, elapsed, p.Window)
	}
	return nil
}
