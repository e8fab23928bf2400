package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/auth"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/config"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/metrics"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/mw"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/service"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/ws"
)

// SetupRouter 统一初始化 Gin 中间件、REST 查询接口以及 WebSocket 端点。
// 账号、频道、kit 的增删改查由外围应用负责，这里不挂载。
func SetupRouter(cfg config.Config, db *gorm.DB, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	gateway := ws.NewGateway(db, hub, cfg)
	r.GET("/ws", gateway.Serve())

	h := NewHandler(service.NewPresenceService(db), service.NewUnreadService(db))

	// 需要 Bearer Token 的查询接口。
	api := r.Group("/api/v1")
	api.Use(auth.AuthMiddleware(cfg))
	api.GET("/users/online", h.ListOnline)
	api.GET("/unread", h.ListUnread)
	api.GET("/channels/:id/unread", h.ChannelUnread)

	return r
}
