package setup

import (
	"github.com/cliniq-dev/cliniq/backend/internal/cache"
	"github.com/cliniq-dev/cliniq/backend/internal/handler"
	"github.com/cliniq-dev/cliniq/backend/internal/service"
	"github.com/cliniq-dev/cliniq/backend/internal/storage/pg"
	"github.com/cliniq-dev/cliniq/backend/internal/utils/email"
	"github.com/cliniq-dev/cliniq/shared/config"
	"github.com/cliniq-dev/cliniq/shared/jwt"
	"github.com/cliniq-dev/cliniq/shared/middleware"
)

// Dependencies struct to hold all initialized dependencies.
type Dependencies struct {
	Config         *config.Config
	Storage        *pg.Storage
	Cache          *cache.Cache
	Handler        *handler.Handler
	AuthMiddleware *middleware.Auth
	Jwt            jwt.JwtService
}

// SetupDependencies initializes all dependencies required for the application.
func SetupDependencies(cfg *config.Config) (*Dependencies, error) {
	storage, err := pg.New(&cfg.Private.Pg)
	if err != nil {
		return nil, err
	}

	sessionCache, err := cache.New(&cfg.Private.Redis)
	if err != nil {
		return nil, err
	}

	mailer := email.New(&cfg.Private.Email)
	jwtService := jwt.New(cfg.JwtKey(), cfg.AccessTTL(), cfg.RefreshTTL())

	auth := service.NewAuth(storage, sessionCache, mailer, jwtService, cfg)

	h := handler.New(auth, cfg, storage, sessionCache)
	authMw := middleware.NewAuth(jwtService, sessionCache, cfg.Public.SecureCookies)

	return &Dependencies{
		Config:         cfg,
		Storage:        storage,
		Cache:          sessionCache,
		Handler:        h,
		AuthMiddleware: authMw,
		Jwt:            jwtService,
	}, nil
}

// Cleanup closes the storage and cache connections.
func (d *Dependencies) Cleanup() {
	if d.Storage != nil {
		d.Storage.Cleanup()
	}
	if d.Cache != nil {
		d.Cache.Cleanup()
	}
}
