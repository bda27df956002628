package rankport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/k0kubun/pp/v3"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"
)

type SuccessResult struct {
	Status bool `json:"status"`
	Data   any  `json:"data,omitempty"`
}

type FailureResult struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// Server carries every shared handle a request needs. It is built once in
// Run and passed by reference; there are no mutable package globals.
type Server struct {
	cfg     *Config
	adminDB *sqlx.DB
	stores  *TenantStoreManager
	locker  TenantLocker
	ids     *IDGenerator
	log     *zap.Logger
}

func NewServer(cfg *Config, adminDB *sqlx.DB, stores *TenantStoreManager, locker TenantLocker, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		adminDB: adminDB,
		stores:  stores,
		locker:  locker,
		ids:     NewIDGenerator(adminDB),
		log:     logger,
	}
}

// Run は cmd/rankport/main.go から呼ばれるエントリーポイントです
func Run() {
	e := echo.New()
	e.Logger.SetLevel(log.INFO)

	cfg, err := LoadConfig()
	if err != nil {
		e.Logger.Fatalf("failed to load config: %v", err)
		return
	}
	if cfg.Debug {
		e.Debug = true
		e.Logger.SetLevel(log.DEBUG)
		pp.Println(cfg)
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		e.Logger.Fatalf("failed to build logger: %v", err)
		return
	}
	defer logger.Sync()

	// sqliteのクエリログを出力する設定
	// RANKPORT_SQLITE_TRACE_FILE を設定すると、そのファイルにクエリログをJSON形式で出力する
	sqliteDriverName, sqlLogger, err := initializeSQLLogger(cfg.SQLiteTraceFile)
	if err != nil {
		e.Logger.Panicf("error initializeSQLLogger: %s", err)
	}
	defer sqlLogger.Close()

	adminDB, err := connectAdminDB(cfg.AdminDB)
	if err != nil {
		e.Logger.Fatalf("failed to connect db: %v", err)
		return
	}
	defer adminDB.Close()

	stores := NewTenantStoreManager(cfg.TenantDBDir, sqliteDriverName)
	locker := NewFlockTenantLocker(cfg.TenantDBDir, cfg.LockTimeout)
	s := NewServer(cfg, adminDB, stores, locker, logger)

	metrics := NewHTTPMetrics(cfg.ServiceName)
	e.Use(middleware.Recover())
	e.Use(RequestLogMiddleware(logger))
	e.Use(metrics.Middleware())
	e.GET("/metrics", metrics.Handler())

	// SaaS管理者向けAPI
	e.POST("/api/admin/tenants/add", s.tenantsAddHandler)
	e.GET("/api/admin/tenants/billing", s.tenantsBillingHandler)

	// テナント管理者向けAPI - 参加者追加、一覧、失格
	e.GET("/api/organizer/players", s.playersListHandler)
	e.POST("/api/organizer/players/add", s.playersAddHandler)
	e.POST("/api/organizer/player/:player_id/disqualified", s.playerDisqualifiedHandler)

	// テナント管理者向けAPI - 大会管理
	e.POST("/api/organizer/competitions/add", s.competitionsAddHandler)
	e.POST("/api/organizer/competition/:competition_id/finish", s.competitionFinishHandler)
	e.POST("/api/organizer/competition/:competition_id/score", s.competitionScoreHandler)
	e.GET("/api/organizer/billing", s.billingHandler)
	e.GET("/api/organizer/competitions", s.organizerCompetitionsHandler)

	// 参加者向けAPI
	e.GET("/api/player/player/:player_id", s.playerHandler)
	e.GET("/api/player/competition/:competition_id/ranking", s.competitionRankingHandler)
	e.GET("/api/player/competitions", s.playerCompetitionsHandler)

	// 全ロール及び未認証でも使えるhandler
	e.GET("/api/me", s.meHandler)

	// ベンチマーカー向けAPI
	e.POST("/initialize", s.initializeHandler)

	e.HTTPErrorHandler = s.errorResponseHandler

	logger.Info("starting rankport server", zap.String("port", cfg.Port))
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}

// エラー処理関数
func (s *Server) errorResponseHandler(err error, c echo.Context) {
	s.log.Error("request failed",
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		c.JSON(he.Code, FailureResult{
			Status:  false,
			Message: fmt.Sprintf("%v", he.Message),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, FailureResult{
		Status:  false,
		Message: err.Error(),
	})
}
