package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/pos-sync-core/internal/application/core"
	"github.com/jhoicas/pos-sync-core/pkg/config"
	"github.com/jhoicas/pos-sync-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando núcleo offline-first")

	engine, err := core.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("construir núcleo")
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("inicializar núcleo")
	}

	// Listener de diagnóstico local, solo si está configurado. Expone estado
	// de salud, sync y sesión para inspección en dispositivo; nunca expone
	// credenciales ni tokens.
	var app *fiber.App
	if cfg.Diag.Addr != "" {
		app = diagApp(engine)
		go func() {
			if err := app.Listen(cfg.Diag.Addr); err != nil {
				log.Error().Err(err).Msg("listener de diagnóstico detenido")
			}
		}()
		log.Info().Str("addr", cfg.Diag.Addr).Msg("diagnóstico local activo")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("apagando")
	if app != nil {
		_ = app.Shutdown()
	}
}

func diagApp(engine *core.Engine) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		s := engine.HealthStatus()
		return c.JSON(fiber.Map{
			"healthy":              s.Healthy,
			"active_source":        s.ActiveSource,
			"last_check":           s.LastCheck,
			"last_error":           s.LastError,
			"consecutive_failures": s.ConsecutiveFailures,
		})
	})

	app.Get("/sync/status", func(c *fiber.Ctx) error {
		s := engine.SyncStatus()
		return c.JSON(fiber.Map{
			"last_sync_at": s.LastSyncAt,
			"last_result":  s.LastResult,
		})
	})

	app.Get("/session", func(c *fiber.Ctx) error {
		sess := engine.Session()
		if sess == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no hay sesión activa"})
		}
		return c.JSON(fiber.Map{
			"user_id":    sess.User.ID,
			"email":      sess.User.Email,
			"role":       sess.User.Role,
			"source":     sess.Source,
			"acting":     sess.Acting(),
			"created_at": sess.CreatedAt,
		})
	})

	return app
}
