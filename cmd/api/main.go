package main

import (
	"log"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"keygate/internal/auth"
	"keygate/internal/config"
	"keygate/internal/httpserver"
	"keygate/internal/license"
	"keygate/internal/logger"
	"keygate/internal/models"
	"keygate/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg := logger.New(cfg.LogLevel)
	defer lg.Sync()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		lg.Fatalw("db connect failed", "error", err)
	}
	if err := db.AutoMigrate(
		&models.Role{}, &models.AdminUser{}, &models.Session{},
		&models.License{}, &models.Device{}, &models.AuditLog{},
	); err != nil {
		lg.Fatalw("automigrate failed", "error", err)
	}
	seedDefaultAdmin(db, lg)

	signer := auth.NewSigner(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	issuer := license.NewIssuer(cfg.Device.TokenSecret, cfg.Device.TokenTTL)
	notifier := notify.New(cfg.FCM.Endpoint, cfg.FCM.ServerKey, cfg.FCM.Timeout, lg)
	svc := license.NewService(
		license.NewStore(db),
		license.NewRegistry(db),
		issuer,
		license.NewRecorder(db, lg),
		notifier,
		lg,
	)

	router := httpserver.NewRouter(db, svc, signer, lg)
	lg.Infow("listening", "port", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, router); err != nil {
		log.Fatal(err)
	}
}

func seedDefaultAdmin(db *gorm.DB, lg *zap.SugaredLogger) {
	for _, name := range []string{"Administrator", "User"} {
		_ = db.FirstOrCreate(&models.Role{}, models.Role{Name: name}).Error
	}
	var count int64
	db.Model(&models.AdminUser{}).Count(&count)
	if count > 0 {
		return
	}
	hash, _ := auth.HashPassword("changeme")
	u := models.AdminUser{Email: strings.ToLower("admin@keygate.local"), PasswordHash: hash, IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := db.Create(&u).Error; err != nil {
		lg.Warnw("admin seed failed", "error", err)
		return
	}
	var adminRole models.Role
	if err := db.First(&adminRole, "name = ?", "Administrator").Error; err == nil {
		_ = db.Model(&u).Association("Roles").Append(&adminRole)
	}
	lg.Infow("seeded default admin", "email", u.Email)
}
