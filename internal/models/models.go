package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// User 是账号表的最小映射，账号本身由外围 CRUD 应用管理。
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex;size:64;not null"`
	CreatedAt time.Time
}

// UserPresence 记录每个用户的在线状态，每个用户最多一行。
type UserPresence struct {
	ID               uint    `gorm:"primaryKey"`
	UserID           uint    `gorm:"uniqueIndex;not null"`
	IsOnline         bool    `gorm:"not null;default:false"`
	ConnectionHandle *string `gorm:"size:64"`
	StatusMessage    string  `gorm:"size:256;not null;default:''"`
	LastActivity     time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Channel 由管理端创建，本子系统只读。
type Channel struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"size:128;not null"`
	Type       string `gorm:"size:32;not null"`
	Department string `gorm:"size:64"`
	CreatedBy  uint   `gorm:"not null"`
	IsActive   bool   `gorm:"not null;default:true"`
	CreatedAt  time.Time
}

// ChannelMember 维护频道成员关系与已读游标（last_read_message_id 单调递增）。
type ChannelMember struct {
	ID                   uint   `gorm:"primaryKey"`
	ChannelID            uint   `gorm:"uniqueIndex:idx_channel_member;not null"`
	UserID               uint   `gorm:"uniqueIndex:idx_channel_member;not null"`
	Role                 string `gorm:"size:32;not null;default:'member'"`
	NotificationsEnabled bool   `gorm:"not null;default:true"`
	LastReadMessageID    *uint
	CreatedAt            time.Time
}

// ChannelMessage 的 ID 由存储分配且严格递增，作为频道内的可见顺序。
type ChannelMessage struct {
	ID              uint   `gorm:"primaryKey"`
	ChannelID       uint   `gorm:"index:idx_channel_msg;not null"`
	SenderID        uint   `gorm:"index;not null"`
	Message         string `gorm:"type:text;not null"`
	ParentMessageID *uint
	SentDate        time.Time `gorm:"autoCreateTime"`
	IsDeleted       bool      `gorm:"not null;default:false"`
}

// KitMessage 支持定向（recipient_id 非空）与广播（recipient_id 为空）两种投递。
type KitMessage struct {
	ID              uint   `gorm:"primaryKey"`
	KitID           uint   `gorm:"index;not null"`
	SenderID        uint   `gorm:"index;not null"`
	RecipientID     *uint  `gorm:"index"`
	Subject         string `gorm:"size:256;not null"`
	Message         string `gorm:"type:text;not null"`
	ParentMessageID *uint
	IsRead          bool `gorm:"not null;default:false"`
	ReadDate        *time.Time
	SentDate        time.Time  `gorm:"autoCreateTime"`
	Attachments     StringList `gorm:"type:text"`
}

// MessageReaction 中 channel_message_id 与 kit_message_id 恰好一个非空；
// 每个 (user, message) 组合最多一行，与 reaction_type 无关。
type MessageReaction struct {
	ID               uint   `gorm:"primaryKey"`
	UserID           uint   `gorm:"index;not null"`
	ChannelMessageID *uint  `gorm:"index"`
	KitMessageID     *uint  `gorm:"index"`
	ReactionType     string `gorm:"size:32;not null"`
	CreatedAt        time.Time
}

// StringList 以 JSON 文本形式落库，用于附件列表。
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("unsupported type for StringList")
	}
}
