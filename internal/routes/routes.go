package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"studycompanion/server/internal/handlers"
	"studycompanion/server/internal/middleware"
)

// Handlers bundles every HTTP handler the routes point at
type Handlers struct {
	Auth      *handlers.AuthHandler
	Groups    *handlers.GroupHandler
	Messages  *handlers.MessageHandler
	Uploads   *handlers.UploadHandler
	WebSocket *handlers.WebSocketHandler
	Health    *handlers.HealthHandler
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h Handlers, idp middleware.Identifier) {
	auth := middleware.Auth(idp)

	api := app.Group("/api/v1")

	// Health (public)
	api.Get("/health", h.Health.Health)
	api.Get("/ready", h.Health.Ready)

	// Auth
	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", middleware.AuthRateLimiter(), h.Auth.Register)
	authRoutes.Post("/login", middleware.AuthRateLimiter(), h.Auth.Login)
	authRoutes.Get("/me", auth, h.Auth.Me)
	authRoutes.Post("/logout", auth, h.Auth.Logout)

	// Study groups and their rooms
	groups := api.Group("/groups", auth)
	groups.Post("/", h.Groups.Create)
	groups.Get("/", h.Groups.List)
	groups.Get("/:groupId", h.Groups.Get)
	groups.Post("/:groupId/join", h.Groups.Join)
	groups.Post("/:groupId/leave", h.Groups.Leave)
	groups.Get("/:groupId/messages", h.Groups.RequireMember, h.Messages.ListGroupMessages)
	groups.Post("/:groupId/messages", h.Groups.RequireMember, middleware.MessageRateLimiter(), h.Messages.SendGroupMessage)

	// Tutor conversation and tools
	tutor := api.Group("/tutor", auth)
	tutor.Get("/messages", h.Messages.ListTutorMessages)
	tutor.Post("/messages", middleware.MessageRateLimiter(), h.Messages.SendTutorMessage)
	tutor.Get("/tools/:tool", h.Messages.GetTool)

	// Uploads
	uploads := api.Group("/upload", auth)
	uploads.Post("/files", middleware.UploadRateLimiter(), h.Uploads.UploadFiles)
	app.Get("/uploads/*", h.Uploads.GetFile)

	// WebSocket
	api.Get("/ws/stats", auth, h.WebSocket.Stats)
	api.Get("/ws/groups/:groupId", auth, h.WebSocket.Upgrade, h.Groups.RequireMember, websocket.New(h.WebSocket.GroupRoom))
	api.Get("/ws/tutor", auth, h.WebSocket.Upgrade, websocket.New(h.WebSocket.TutorRoom))
}
