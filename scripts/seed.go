package main

import (
	"context"
	"errors"
	"fmt"
	"guardpost/auth"
	"guardpost/config"
	"guardpost/db"
	"guardpost/logging"
	"guardpost/models"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	if cfg.Store.Driver != config.DriverFirestore {
		log.Fatalf("seeding requires STORE_DRIVER=%s", config.DriverFirestore)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, "console", cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	app, err := db.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsPath, cfg.Firebase.StorageBucket)
	if err != nil {
		logger.Fatal("failed to initialize Firebase", zap.Error(err))
	}
	firestoreDB, err := db.NewFirestoreDB(ctx, app, logger)
	if err != nil {
		logger.Fatal("failed to initialize Firestore", zap.Error(err))
	}
	defer firestoreDB.Close()

	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "changeme123"
	}

	logger.Info("starting database seeding")
	if err := seedUsers(ctx, firestoreDB, password, logger); err != nil {
		logger.Fatal("failed to seed users", zap.Error(err))
	}
	logger.Info("database seeding completed")
}

// seedUsers creates the initial staff. Existing emails are left untouched, so
// the script can be re-run.
func seedUsers(ctx context.Context, users db.UserStore, password string, logger *zap.Logger) error {
	staff := []models.User{
		{UserID: "user-admin", Name: "System Admin", Email: "admin@guardpost.local", Role: models.RoleAdmin},
		{UserID: "user-manager-amina", Name: "Amina Okafor", Email: "amina@guardpost.local", Role: models.RoleManager},
		{UserID: "user-guard-east", Name: "East Gate Guard", Email: "east@guardpost.local", Role: models.RoleGuard},
		{UserID: "user-guard-west", Name: "West Gate Guard", Email: "west@guardpost.local", Role: models.RoleGuard},
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash seed password: %w", err)
	}

	for _, user := range staff {
		_, err := users.GetUserByEmail(ctx, user.Email)
		if err == nil {
			logger.Info("user exists, skipping", zap.String("email", user.Email))
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("failed to look up %s: %w", user.Email, err)
		}

		user.Active = true
		user.CreatedAt = time.Now().UTC()
		if err := users.CreateUser(ctx, &user); err != nil {
			return fmt.Errorf("failed to create user %s: %w", user.Email, err)
		}
		if err := users.StorePasswordHash(ctx, user.UserID, passwordHash); err != nil {
			return fmt.Errorf("failed to store password for %s: %w", user.Email, err)
		}

		logger.Info("created user", zap.String("email", user.Email), zap.String("role", string(user.Role)))
	}

	return nil
}
