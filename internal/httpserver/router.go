package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keygate/internal/auth"
	"keygate/internal/httpserver/handlers"
	"keygate/internal/license"
)

func NewRouter(db *gorm.DB, svc *license.Service, signer *auth.Signer, lg *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)

	// device-facing API
	r.Post("/activate", handlers.Activate(svc, lg))
	r.Post("/validate", handlers.Validate(svc, lg))

	r.Post("/v1/auth/login", handlers.Login(db, signer, lg))
	r.Group(func(protected chi.Router) {
		protected.Use(auth.JWTAuth(db, signer))
		protected.Get("/v1/me", handlers.Me(db, lg))
		protected.Post("/v1/auth/logout", handlers.Logout(db))
		protected.Post("/v1/auth/password", handlers.ChangePassword(db, lg))

		protected.Post("/v1/licenses", handlers.CreateLicense(svc, lg))
		protected.Get("/v1/licenses", handlers.ListLicenses(db, lg))
		protected.Get("/v1/licenses/{id}", handlers.GetLicense(db, lg))
		protected.Post("/v1/licenses/{id}/revoke", handlers.RevokeLicense(svc, lg))

		protected.Get("/v1/devices", handlers.ListDevices(db, lg))
		protected.Post("/v1/devices/{device_id}/notify", handlers.NotifyDevice(svc, lg))
		protected.Post("/v1/notifications/expiry-warnings", handlers.SendExpiryWarnings(svc, lg))

		protected.Get("/v1/logs", handlers.AuditLogs(db, lg))

		protected.Group(func(admin chi.Router) {
			admin.Use(auth.RequireRole("Administrator"))
			admin.Get("/v1/admin/users", handlers.ListUsers(db, lg))
			admin.Post("/v1/admin/users", handlers.CreateUser(db, lg))
			admin.Patch("/v1/admin/users/{id}", handlers.UpdateUser(db, lg))
			admin.Delete("/v1/admin/users/{id}", handlers.DeleteUser(db, lg))
		})
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}
