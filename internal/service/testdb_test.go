package service

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/db"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/models"
)

// newTestDB opens a fresh in-memory sqlite database per test. The pool is
// pinned to a single connection so the :memory: database survives reuse.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func seedChannel(t *testing.T, gdb *gorm.DB, id uint, active bool) {
	t.Helper()
	ch := models.Channel{ID: id, Name: "channel", Type: "team", CreatedBy: 1, IsActive: active}
	if err := gdb.Create(&ch).Error; err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	// gorm omits zero-valued fields whose column has a default, so IsActive=false
	// would otherwise be stored as the default (true); force the column explicitly.
	if err := gdb.Model(&models.Channel{}).Where("id = ?", id).Update("is_active", active).Error; err != nil {
		t.Fatalf("seed channel active flag: %v", err)
	}
}

func seedMember(t *testing.T, gdb *gorm.DB, channelID, userID uint, cursor *uint) {
	t.Helper()
	m := models.ChannelMember{ChannelID: channelID, UserID: userID, Role: "member", LastReadMessageID: cursor}
	if err := gdb.Create(&m).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
}

func uintPtr(v uint) *uint { return &v }
