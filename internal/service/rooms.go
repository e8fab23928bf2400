package service

import (
	"gorm.io/gorm"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/models"
)

// RoomService 只读频道成员关系，为连接计算应当加入的广播组。
type RoomService struct {
	db *gorm.DB
}

func NewRoomService(db *gorm.DB) *RoomService {
	return &RoomService{db: db}
}

// ChannelIDs 返回用户所属的全部活跃频道。连接建立时调用一次做
// 快照式加入，之后的成员变更要等重连或显式 join_channel 才生效。
func (s *RoomService) ChannelIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := s.db.Model(&models.ChannelMember{}).
		Joins("JOIN channels ON channels.id = channel_members.channel_id AND channels.is_active = ?", true).
		Where("channel_members.user_id = ?", userID).
		Pluck("channel_members.channel_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// IsMember 检查用户是否为活跃频道的成员。
func (s *RoomService) IsMember(channelID, userID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.ChannelMember{}).
		Joins("JOIN channels ON channels.id = channel_members.channel_id AND channels.is_active = ?", true).
		Where("channel_members.channel_id = ? AND channel_members.user_id = ?", channelID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
