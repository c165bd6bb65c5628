package app

import (
	"database/sql"
	"fmt"
	"log"

	"caerp/internal/config"
	"caerp/internal/handlers"
	"caerp/internal/middleware"
	"caerp/internal/pdf"
	"caerp/internal/repositories"
	"caerp/internal/routes"
	"caerp/internal/services"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "caerp/docs"
)

func Run() {
	cfg := config.LoadConfig()

	if cfg.Auth.JWTSecret != "" {
		middleware.JWTKey = []byte(cfg.Auth.JWTSecret)
	}

	// === DB ===
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}()

	// === Repos ===
	userRepo := repositories.NewUserRepository(db)
	clientRepo := repositories.NewClientRepository(db)
	projectRepo := repositories.NewProjectRepository(db)
	taskRepo := repositories.NewTaskRepository(db)
	invoiceRepo := repositories.NewInvoiceRepository(db)
	reportRepo := repositories.NewReportRepository(db)

	// === Services ===
	authService := services.NewAuthService()
	emailService := services.NewEmailService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.FromEmail,
	)
	tgService := services.NewTelegramService(cfg.Telegram.BotToken)

	pdfGen := pdf.NewDocumentGenerator(cfg.Files.RootDir, "assets/fonts/DejaVuSans.ttf")

	userService := services.NewUserService(userRepo, authService, emailService)
	clientService := services.NewClientService(clientRepo)
	projectService := services.NewProjectService(projectRepo, clientRepo)
	taskService := services.NewTaskService(taskRepo, projectRepo, projectService)
	invoiceService := services.NewInvoiceService(
		taskRepo,
		projectRepo,
		clientRepo,
		invoiceRepo,
		projectService,
		pdfGen,
		emailService,
	)
	reportService := services.NewReportService(reportRepo)

	// === Handlers ===
	authHandler := handlers.NewAuthHandler(userService)
	userHandler := handlers.NewUserHandler(userService)
	clientHandler := handlers.NewClientHandler(clientService)
	projectHandler := handlers.NewProjectHandler(projectService, cfg.Files.RootDir)
	taskHandler := handlers.NewTaskHandler(taskService, userService, tgService, cfg.Files.RootDir)
	invoiceHandler := handlers.NewInvoiceHandler(invoiceService)
	reportHandler := handlers.NewReportHandler(reportService)

	// === Gin ===
	router := gin.Default()
	router.Use(corsMiddleware())

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupRoutes(
		router,
		authHandler,
		userHandler,
		clientHandler,
		projectHandler,
		taskHandler,
		invoiceHandler,
		reportHandler,
	)

	// === Run ===
	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("server listening on %s", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("failed to start server: ", err)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
