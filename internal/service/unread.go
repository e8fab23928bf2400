package service

import (
	"errors"

	"gorm.io/gorm"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/models"
)

// UnreadService 从已读游标推导未读数，不维护逐条已读标记。
// 未读数 = 频道内 id 大于 last_read_message_id 且未被软删的消息数；
// 游标为空时计入全部未删消息。
type UnreadService struct {
	db *gorm.DB
}

func NewUnreadService(db *gorm.DB) *UnreadService {
	return &UnreadService{db: db}
}

// ChannelUnread 是对外输出的单个频道未读数。
type ChannelUnread struct {
	ChannelID uint  `json:"channel_id"`
	Unread    int64 `json:"unread"`
}

// Count 返回某成员在单个频道的未读数，非成员拒绝。
func (s *UnreadService) Count(channelID, userID uint) (int64, error) {
	var member models.ChannelMember
	err := s.db.Where("channel_id = ? AND user_id = ?", channelID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotChannelMember
		}
		return 0, err
	}
	return s.countAfter(channelID, member.LastReadMessageID)
}

// Counts 返回用户全部活跃频道的未读数，与房间计算用同一套成员口径。
func (s *UnreadService) Counts(userID uint) ([]ChannelUnread, error) {
	var members []models.ChannelMember
	err := s.db.Model(&models.ChannelMember{}).
		Joins("JOIN channels ON channels.id = channel_members.channel_id AND channels.is_active = ?", true).
		Where("channel_members.user_id = ?", userID).
		Order("channel_members.channel_id").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	out := make([]ChannelUnread, 0, len(members))
	for _, m := range members {
		n, err := s.countAfter(m.ChannelID, m.LastReadMessageID)
		if err != nil {
			return nil, err
		}
		out = append(out, ChannelUnread{ChannelID: m.ChannelID, Unread: n})
	}
	return out, nil
}

func (s *UnreadService) countAfter(channelID uint, cursor *uint) (int64, error) {
	q := s.db.Model(&models.ChannelMessage{}).
		Where("channel_id = ? AND is_deleted = ?", channelID, false)
	if cursor != nil {
		q = q.Where("id > ?", *cursor)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
