package ws

import (
	"encoding/json"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/service"
)

// Event 是入站事件的统一信封：每帧一个 JSON 对象，type 决定分发，
// token 随每个事件重复校验以便令牌在会话中途过期时逐事件失效。
type Event struct {
	Type             string   `json:"type"`
	Token            string   `json:"token"`
	KitID            uint     `json:"kit_id"`
	ChannelID        uint     `json:"channel_id"`
	MessageID        uint     `json:"message_id"`
	ChannelMessageID uint     `json:"channel_message_id"`
	KitMessageID     uint     `json:"kit_message_id"`
	ReactionID       uint     `json:"reaction_id"`
	ReactionType     string   `json:"reaction_type"`
	RecipientID      *uint    `json:"recipient_id"`
	ParentMessageID  *uint    `json:"parent_message_id"`
	Subject          string   `json:"subject"`
	Message          string   `json:"message"`
	StatusMessage    string   `json:"status_message"`
	Attachments      []string `json:"attachments"`
}

// ReactionRef 把目标消息 ID 收敛为 MessageRef。两个 ID 必须恰好给出
// 一个，同时给出或都缺失返回零值，由服务层按缺失目标拒绝。
func (ev Event) ReactionRef() service.MessageRef {
	if ev.ChannelMessageID != 0 && ev.KitMessageID != 0 {
		return service.MessageRef{}
	}
	if ev.ChannelMessageID != 0 {
		return service.MessageRef{Kind: service.MessageKindChannel, ID: ev.ChannelMessageID}
	}
	if ev.KitMessageID != 0 {
		return service.MessageRef{Kind: service.MessageKindKit, ID: ev.KitMessageID}
	}
	return service.MessageRef{}
}

// TypingTarget 解析输入状态的目标房间；两个 ID 都缺失时返回 false，
// 调用方静默丢弃。
func (ev Event) TypingTarget() (room string, fields map[string]interface{}, ok bool) {
	if ev.ChannelID != 0 {
		return ChannelRoom(ev.ChannelID), map[string]interface{}{"channel_id": ev.ChannelID}, true
	}
	if ev.KitID != 0 {
		return KitRoom(ev.KitID), map[string]interface{}{"kit_id": ev.KitID}, true
	}
	return "", nil, false
}

// payload 组装出站事件：type 字段加上载荷字段。
func payload(event string, fields map[string]interface{}) []byte {
	m := make(map[string]interface{}, len(fields)+1)
	m["type"] = event
	for k, v := range fields {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	return b
}
