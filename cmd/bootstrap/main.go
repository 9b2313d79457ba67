package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/labstack/echo/v4"
	adaptermiddleware "ops-portal/internal/adapters/http/middleware"
	adapterlogger "ops-portal/internal/adapters/logger"
	"ops-portal/internal/application"
	"ops-portal/internal/infrastructure/auth"
	"ops-portal/internal/infrastructure/cognito"
	"ops-portal/internal/infrastructure/dynamodb"
	httpiface "ops-portal/internal/interfaces/http"
)

type config struct {
	TableName      string
	Region         string
	UserPoolID     string
	AppClientID    string
	AuthMode       adaptermiddleware.Mode
	Port           string
	StreamPoll     time.Duration
	AllowedOrigins []string
}

func loadConfig() (config, error) {
	authMode, err := adaptermiddleware.ParseAuthMode()
	if err != nil {
		return config{}, err
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	streamPoll := 2 * time.Second
	if raw := os.Getenv("STREAM_POLL_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return config{}, errors.New("invalid STREAM_POLL_INTERVAL")
		}
		streamPoll = parsed
	}
	origins := []string{"*"}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		origins = strings.Split(raw, ",")
	}
	cfg := config{
		TableName:      os.Getenv("TABLE_NAME"),
		Region:         os.Getenv("AWS_REGION"),
		UserPoolID:     os.Getenv("COGNITO_USER_POOL_ID"),
		AppClientID:    os.Getenv("COGNITO_APP_CLIENT_ID"),
		AuthMode:       authMode,
		Port:           port,
		StreamPoll:     streamPoll,
		AllowedOrigins: origins,
	}
	if cfg.TableName == "" || cfg.Region == "" {
		return config{}, errors.New("missing required environment variables")
	}
	if cfg.AuthMode == adaptermiddleware.ModeCognito && (cfg.UserPoolID == "" || cfg.AppClientID == "") {
		return config{}, errors.New("COGNITO_USER_POOL_ID and COGNITO_APP_CLIENT_ID are required for cognito auth mode")
	}
	return cfg, nil
}

func main() {
	logger := adapterlogger.New()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error(context.Background(), "configuration error", "error", err)
		os.Exit(1)
	}
	xray.Configure(xray.Config{LogLevel: "error"})

	ddbClient, err := dynamodb.NewClient(context.Background(), cfg.Region, cfg.TableName, cfg.StreamPoll)
	if err != nil {
		logger.Error(context.Background(), "failed to initialize dynamodb client", "error", err)
		os.Exit(1)
	}
	roleRepo := dynamodb.NewRoleRecordRepository(ddbClient, logger.With("component", "role_repository"))
	docStore := dynamodb.NewDocumentStore(ddbClient)

	accounts, err := cognito.NewAccountStore(context.Background(), cfg.Region, cfg.UserPoolID, cfg.AppClientID)
	if err != nil {
		logger.Error(context.Background(), "failed to initialize account store", "error", err)
		os.Exit(1)
	}

	sessions := application.NewSessionManager(roleRepo, logger.With("component", "sessions"))
	roleSvc := application.NewRoleService(roleRepo, logger)
	authzSvc := application.NewAuthorizationService(roleRepo, sessions, logger)
	navSvc := application.NewNavigationService(authzSvc)
	recordSvc := application.NewRecordService(docStore, logger)
	migrationSvc := application.NewMigrationService(roleRepo, logger.With("component", "migration"))

	var cognitoHandler echo.MiddlewareFunc
	if cfg.AuthMode == adaptermiddleware.ModeCognito {
		cognitoHandler = auth.NewCognitoMiddleware(cfg.UserPoolID, cfg.AppClientID, cfg.Region, logger.With("component", "auth")).Handler
	}
	authMiddleware, err := adaptermiddleware.AuthMiddleware(cognitoHandler)
	if err != nil {
		logger.Error(context.Background(), "failed to initialize auth middleware", "error", err)
		os.Exit(1)
	}
	mw := httpiface.Middleware{
		Auth:          authMiddleware,
		XRay:          adaptermiddleware.XRayMiddleware("ops-portal-http"),
		RequestLogger: adaptermiddleware.RequestLogger(logger),
	}

	e := httpiface.NewMainRouter(
		httpiface.NewAuthHandler(accounts, logger),
		httpiface.NewSessionHandler(authzSvc, navSvc, logger),
		httpiface.NewAdminHandler(roleSvc, accounts, migrationSvc, logger),
		httpiface.NewRecordsHandler(recordSvc, logger),
		httpiface.NewWatchHandler(sessions, cfg.AllowedOrigins, logger.With("component", "watch")),
		authzSvc,
		mw,
	)
	logger.Info(context.Background(), "starting http server", "port", cfg.Port)
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
