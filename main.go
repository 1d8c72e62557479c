package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tap-referral-system/handlers"
	"tap-referral-system/middleware"
	"tap-referral-system/models"
	"tap-referral-system/services"
	"tap-referral-system/utils"
	"tap-referral-system/workers"

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

	// All traffic comes through the Gateway — no exceptions.
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOrigins := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-Username, X-Service-Token",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Participant{},
		&models.ReferralEdge{},
		&models.RewardEvent{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	botLinkBase := os.Getenv("BOT_LINK_BASE")
	if botLinkBase == "" {
		botLinkBase = "https://t.me/tap_game_bot"
	}
	webLinkBase := os.Getenv("WEB_LINK_BASE")
	if webLinkBase == "" {
		webLinkBase = allowedOriginsList[0]
	}

	referralService := services.NewReferralService(db, botLinkBase, webLinkBase)
	distributor := services.NewRewardDistributor(db)
	pointsService := services.NewPointsService(db, distributor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	distributorWorker := workers.NewRewardDistributorWorker(distributor, 5*time.Second, 100)
	go distributorWorker.Run(ctx)

	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	serviceToken := os.Getenv("REFERRAL_SERVICE_TOKEN")
	if syncServiceURL != "" {
		syncWorker := workers.NewParticipantSyncWorker(db, syncServiceURL, serviceToken, 1*time.Minute)
		go syncWorker.Run(ctx)
	} else {
		log.Println("⚠️  SYNC_SERVICE_URL not set — participant sync worker disabled")
	}

	referralService.StartLedgerScheduler()

	handlers.SetupReferralRoutes(app, referralService, pointsService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Reward distributor worker running (every 5s)")
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
