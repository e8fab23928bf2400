package service

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/models"
)

// PresenceService 独占 user_presence 表的写入；每个用户最多一行，
// 首次连接时惰性创建，之后永不删除。
type PresenceService struct {
	db *gorm.DB
}

func NewPresenceService(db *gorm.DB) *PresenceService {
	return &PresenceService{db: db}
}

// SetOnline 将用户标记为在线并记录本次连接句柄。同一用户并发连接时
// 以最后提交的为准（行级 last-writer-wins，不做合并）。
func (s *PresenceService) SetOnline(userID uint, handle string) error {
	now := time.Now()
	row := models.UserPresence{
		UserID:           userID,
		IsOnline:         true,
		ConnectionHandle: &handle,
		LastActivity:     now,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "connection_handle", "last_activity", "updated_at"}),
	}).Create(&row).Error
}

// SetOffline 清除在线标记与连接句柄。不存在 presence 行时返回 false，
// 调用方据此跳过 user_offline 广播。
func (s *PresenceService) SetOffline(userID uint) (bool, error) {
	var row models.UserPresence
	if err := s.db.Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	err := s.db.Model(&row).Updates(map[string]interface{}{
		"is_online":         false,
		"connection_handle": nil,
	}).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetStatus 更新用户的状态文案，行不存在时创建。
func (s *PresenceService) SetStatus(userID uint, status string) error {
	row := models.UserPresence{
		UserID:        userID,
		StatusMessage: status,
		LastActivity:  time.Now(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status_message", "updated_at"}),
	}).Create(&row).Error
}

// Touch 在 presence 行存在时刷新 last_activity；行不存在则什么都不做。
func (s *PresenceService) Touch(userID uint) error {
	return s.db.Model(&models.UserPresence{}).
		Where("user_id = ?", userID).
		Update("last_activity", time.Now()).Error
}

// ListOnline 返回当前在线用户，供 REST 接口复用。
func (s *PresenceService) ListOnline() ([]models.UserPresence, error) {
	var rows []models.UserPresence
	if err := s.db.Where("is_online = ?", true).Order("user_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
