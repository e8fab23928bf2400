package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/config"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/db"
	clog "github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/log"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/server"
	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/ws"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	_ = godotenv.Load()
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	hub := ws.NewHub()
	r := server.SetupRouter(cfg, gdb, hub)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
