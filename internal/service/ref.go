package service

// MessageKind 区分两类消息，决定回应/输入法等事件投递到哪个房间。
type MessageKind string

const (
	MessageKindChannel MessageKind = "channel"
	MessageKindKit     MessageKind = "kit"
)

// MessageRef 指向某一条已存在的消息，二选一的目标在解码时收敛成这个值，
// 后续路径不再出现"两个可空 ID 恰好一个非空"的运行时检查。
type MessageRef struct {
	Kind MessageKind
	ID   uint
}

// Zero 表示调用方没有给出任何目标消息。
func (r MessageRef) Zero() bool { return r.ID == 0 }
