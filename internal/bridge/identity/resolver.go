package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"tg_zulip_bridge/internal/bridge/models"
)

// Resolver 将 Telegram 发送者引用解析为 Zulip 端显示形式
// 映射表启动时加载一次，运行期间只读；查不到不是错误，降级为纯文本姓名
type Resolver struct {
	mapping map[string]string
}

// New 创建空映射的 Resolver（所有解析都会降级为纯文本姓名）
func New() *Resolver {
	return &Resolver{mapping: map[string]string{}}
}

// NewWithMapping 从现成的映射表创建 Resolver
func NewWithMapping(mapping map[string]string) *Resolver {
	if mapping == nil {
		mapping = map[string]string{}
	}
	return &Resolver{mapping: mapping}
}

// LoadFile 从 JSON 文件加载用户映射表
// 文件是一个扁平对象：key 为 Telegram username 或数字 ID 字符串，value 为 Zulip 全名
// 文件不存在时返回空 Resolver 和错误，调用方记录日志后可继续运行
func LoadFile(path string) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return New(), fmt.Errorf("failed to read users mapping file: %w", err)
	}

	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		return New(), fmt.Errorf("failed to parse users mapping file %s: %w", path, err)
	}

	return NewWithMapping(mapping), nil
}

// Resolve 解析发送者显示形式
// 解析顺序：username 命中 -> 数字 ID 命中 -> 纯文本姓名（降级，不产生 Zulip 提及）
func (r *Resolver) Resolve(sender models.Sender) string {
	if sender.Username != "" {
		if name, ok := r.mapping[sender.Username]; ok {
			return MentionForm(name)
		}
	}
	if name, ok := r.mapping[strconv.FormatInt(sender.ID, 10)]; ok {
		return MentionForm(name)
	}
	return sender.DisplayName()
}

// LookupHandle 按 Telegram username 查询 Zulip 全名
func (r *Resolver) LookupHandle(handle string) (string, bool) {
	name, ok := r.mapping[handle]
	return name, ok
}

// LookupID 按 Telegram 用户 ID 查询 Zulip 全名
func (r *Resolver) LookupID(id int64) (string, bool) {
	name, ok := r.mapping[strconv.FormatInt(id, 10)]
	return name, ok
}

// Size 返回映射表条目数
func (r *Resolver) Size() int {
	return len(r.mapping)
}

// MentionForm 返回 Zulip 静默提及语法
func MentionForm(name string) string {
	return "@_**" + name + "**"
}
