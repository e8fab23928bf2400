package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/auth"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/config"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/db"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/models"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/ws"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Port: "0", DatabaseDSN: ":memory:", JWTSecret: "secret", Env: "dev", AccessTokenTTLMinutes: 15}
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
	return SetupRouter(cfg, gdb, ws.NewHub()), gdb, cfg
}

func TestHealthz(t *testing.T) {
	engine, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	engine, _, _ := newTestRouter(t)

	for _, path := range []string{"/api/v1/users/online", "/api/v1/unread", "/api/v1/channels/1/unread"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: expected 401, got %d", path, w.Code)
		}
	}
}

func TestChannelUnreadEndpoint(t *testing.T) {
	engine, gdb, cfg := newTestRouter(t)

	ch := models.Channel{ID: 1, Name: "ops", Type: "team", CreatedBy: 1, IsActive: true}
	if err := gdb.Create(&ch).Error; err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	member := models.ChannelMember{ChannelID: 1, UserID: 7, Role: "member"}
	if err := gdb.Create(&member).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	msg := models.ChannelMessage{ChannelID: 1, SenderID: 7, Message: "hello"}
	if err := gdb.Create(&msg).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}

	memberToken, err := auth.GenerateAccessToken(7, cfg.JWTSecret, cfg.AccessTokenTTLMinutes)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	outsiderToken, err := auth.GenerateAccessToken(8, cfg.JWTSecret, cfg.AccessTokenTTLMinutes)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels/1/unread", nil)
	req.Header.Set("Authorization", "Bearer "+memberToken)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		ChannelID int   `json:"channel_id"`
		Unread    int64 `json:"unread"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ChannelID != 1 || body.Unread != 1 {
		t.Errorf("body = %+v, want channel 1 unread 1", body)
	}

	// A non-member gets 403 with the membership error message
	req = httptest.NewRequest(http.MethodGet, "/api/v1/channels/1/unread", nil)
	req.Header.Set("Authorization", "Bearer "+outsiderToken)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	var errBody struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if errBody.Error != "Not a channel member" {
		t.Errorf("error = %q, want %q", errBody.Error, "Not a channel member")
	}

	// Malformed channel id is a 400
	req = httptest.NewRequest(http.MethodGet, "/api/v1/channels/abc/unread", nil)
	req.Header.Set("Authorization", "Bearer "+memberToken)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestListOnlineEndpoint(t *testing.T) {
	engine, gdb, cfg := newTestRouter(t)

	handle := "conn-a"
	row := models.UserPresence{UserID: 3, IsOnline: true, ConnectionHandle: &handle, StatusMessage: "on shift"}
	if err := gdb.Create(&row).Error; err != nil {
		t.Fatalf("seed presence: %v", err)
	}

	token, err := auth.GenerateAccessToken(3, cfg.JWTSecret, cfg.AccessTokenTTLMinutes)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/online", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Users []struct {
			UserID        uint   `json:"user_id"`
			StatusMessage string `json:"status_message"`
		} `json:"users"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Users) != 1 || body.Users[0].UserID != 3 || body.Users[0].StatusMessage != "on shift" {
		t.Errorf("users = %+v, want user 3 with status %q", body.Users, "on shift")
	}
}
