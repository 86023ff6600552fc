package server

import (
	"ShopHub/bus"
	"ShopHub/config"
	"ShopHub/handlers"
	"ShopHub/kafka"
	"ShopHub/limiter"
	custommiddleware "ShopHub/middleware"
	"ShopHub/models"
	redisclient "ShopHub/redis"
	"ShopHub/services"
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Server struct {
	Echo                 *echo.Echo
	DB                   *gorm.DB
	Config               *config.Config
	Bus                  bus.Bus
	Redis                *redisclient.RedisClient
	RateLimiter          *limiter.Manager
	AuthService          *services.AuthService
	AuthHandler          *handlers.AuthHandler
	ConversationHandler  *handlers.ConversationHandler
	ChatWebSocketHandler *handlers.ChatWebSocketHandler
	UploadHandler        *handlers.UploadHandler

	kafkaProducer *kafka.Producer
	kafkaConsumer *kafka.Consumer
	consumerStop  context.CancelFunc
}

func NewServer() *Server {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := models.AutoMigrateAll(db); err != nil {
		log.Fatal("Failed to auto-migrate database:", err)
	}

	redisClient, err := redisclient.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to redis:", err)
	}

	// 跨进程部署走 redis pub/sub，连接层只认 bus.Bus 接口
	messageBus := bus.NewRedis(redisClient.Client)

	// 初始化 Echo
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	allowOrigins := cfg.Server.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"http://localhost:5173"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.PATCH},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Guest-Session"},
		AllowCredentials: true,
		ExposeHeaders:    []string{echo.HeaderContentLength},
		MaxAge:           86400,
	}))

	s := &Server{
		Echo:        e,
		DB:          db,
		Config:      &cfg,
		Bus:         messageBus,
		Redis:       redisClient,
		RateLimiter: limiter.NewManager(redisClient.Client, &limiter.FixedWindowStrategy{}),
	}

	// 会话生命周期审计流（可选）
	if cfg.Kafka.Enabled {
		s.setupKafka(&cfg)
	}

	authService := services.NewAuthService(db, &cfg.Auth)
	conversationService := services.NewConversationService(db, messageBus, s.kafkaProducer)
	messageService := services.NewMessageService(db, messageBus)
	customerService := services.NewCustomerService(db)

	s.AuthService = authService
	s.AuthHandler = handlers.NewAuthHandler(authService)
	s.ConversationHandler = handlers.NewConversationHandler(conversationService, customerService)
	s.ChatWebSocketHandler = handlers.NewChatWebSocketHandler(db, messageBus, redisClient, conversationService, messageService)
	s.UploadHandler = handlers.NewUploadHandler(&cfg.Upload, conversationService, messageService)

	// --- 设置路由 ---
	authMiddleware := custommiddleware.RequireAuth(authService)
	optionalAuth := custommiddleware.OptionalAuth(authService)
	agentMiddleware := custommiddleware.AgentRequired(db)
	s.SetupRoutes(authMiddleware, optionalAuth, agentMiddleware)
	return s
}

func (s *Server) setupKafka(cfg *config.Config) {
	var saramaConfig, err = kafka.NewSaramaConfig(&cfg.Kafka)
	if cfg.Kafka.UseSCRAM {
		saramaConfig, err = kafka.NewSaramaConfigWithSCRAM(&cfg.Kafka, "SCRAM-SHA-512")
	}
	if err != nil {
		log.Fatal("Failed to build kafka config:", err)
	}

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, saramaConfig)
	if err != nil {
		log.Fatal("Failed to create kafka producer:", err)
	}
	s.kafkaProducer = producer

	handler := kafka.NewConversationEventHandler(s.DB)
	consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID,
		[]string{cfg.Kafka.Topic}, saramaConfig, handler)
	if err != nil {
		log.Fatal("Failed to create kafka consumer:", err)
	}
	s.kafkaConsumer = consumer

	ctx, cancel := context.WithCancel(context.Background())
	s.consumerStop = cancel
	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Errorf("Kafka consumer stopped: %v", err)
		}
	}()
}

func (s *Server) Start(addr string) {
	log.Fatal(s.Echo.Start(addr))
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.consumerStop != nil {
		s.consumerStop()
	}
	if s.kafkaConsumer != nil {
		_ = s.kafkaConsumer.Close()
	}
	if s.kafkaProducer != nil {
		_ = s.kafkaProducer.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	return s.Echo.Shutdown(ctx)
}
