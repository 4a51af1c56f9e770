package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"confidential-rps-service/handlers"
	"confidential-rps-service/middleware"
	"confidential-rps-service/models"
	"confidential-rps-service/services"
	"confidential-rps-service/utils"
	"confidential-rps-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New()

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Principal-Address",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Game{},
		&models.Counter{},
		&models.Ciphertext{},
		&models.Permission{},
		&models.GameEvent{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	permService := services.NewPermissionService(db)
	engine, err := services.NewFheEngine(permService)
	if err != nil {
		log.Fatal("failed to initialize FHE engine:", err)
	}
	gameService := services.NewGameService(db, engine, permService)
	cryptoService := services.NewCryptoService(db, engine, permService)
	eventService := services.NewEventService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Optional: archive resolved games to R2 ---
	archiveEnabled, err := utils.InitR2()
	if err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}
	if archiveEnabled {
		archiveWorker := workers.NewArchiveWorker(db)
		go archiveWorker.Run(ctx, 30*time.Second)
	} else {
		log.Println("⚠️  R2 not configured — resolved-game archival disabled")
	}

	gameService.StartDigestScheduler()

	// ✅ Setup routes — enforced Gateway auth + /s prefix for principal routes
	handlers.SetupGameRoutes(app, gameService)
	handlers.SetupCryptoRoutes(app, cryptoService)
	handlers.SetupEventRoutes(app, eventService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Printf("✅ FHE engine bound to contract instance %s", engine.ContractID())
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
