package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/config"
	"chat-realtime/internal/database"
	"chat-realtime/internal/handlers"
	"chat-realtime/internal/presence"
	"chat-realtime/internal/rooms"
	"chat-realtime/internal/services"
	"chat-realtime/internal/websocket"
	"chat-realtime/pkg/logger"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}
	log := logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		return exitRuntime, err
	}
	defer db.Close()

	// Realtime components
	registry := rooms.NewRegistry(db, log.With("component", "rooms"))
	friends := presence.NewFriendDirectory(db, cfg.Realtime.FriendRefreshInterval, log.With("component", "friends"))
	go friends.Run(ctx)

	hub := websocket.NewHub(websocket.Options{
		Registry:     registry,
		Store:        db,
		Audience:     presence.FriendsAndCoMembers{Friends: friends, Rooms: registry},
		TypingExpiry: cfg.Realtime.TypingExpiry,
		Log:          log.With("component", "hub"),
	})

	// Initialize services
	authService := auth.NewService(db, cfg.JWT)
	roomService := services.NewRoomService(db, registry, hub.Presence())

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	roomHandlers := handlers.NewRoomHandlers(roomService, authService)
	wsHandlers := handlers.NewWebSocketHandlers(authService, hub, cfg.Realtime)
	adminHandlers := handlers.NewAdminHandlers(hub, cfg.Server.AdminToken)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, authHandlers, roomHandlers, wsHandlers, adminHandlers)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints(adminHandlers.Enabled())

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return exitRuntime, fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("shutdown: %w", err)
	}
	return exitOK, nil
}

func setupRoutes(mux *http.ServeMux, authHandlers *handlers.AuthHandlers, roomHandlers *handlers.RoomHandlers, wsHandlers *handlers.WebSocketHandlers, adminHandlers *handlers.AdminHandlers) {
	// Auth routes
	mux.HandleFunc("/login", authHandlers.Login)
	mux.HandleFunc("/register", authHandlers.Register)

	// Room routes
	mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			roomHandlers.ListRooms(w, r)
		case http.MethodPost:
			roomHandlers.CreateRoom(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Room sub-routes
	mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[1] == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}

		if len(parts) == 2 && r.Method == http.MethodDelete {
			roomHandlers.DeleteRoom(w, r)
			return
		}
		if len(parts) != 3 {
			http.Error(w, "endpoint not found", http.StatusNotFound)
			return
		}

		switch {
		case parts[2] == "invite" && r.Method == http.MethodPost:
			roomHandlers.InviteUser(w, r)
		case parts[2] == "members" && r.Method == http.MethodGet:
			roomHandlers.GetRoomMembers(w, r)
		case parts[2] == "leave" && r.Method == http.MethodDelete:
			roomHandlers.LeaveRoom(w, r)
		case parts[2] == "active" && r.Method == http.MethodGet:
			roomHandlers.GetActiveUsers(w, r)
		case parts[2] == "messages" && r.Method == http.MethodGet:
			roomHandlers.GetMessages(w, r)
		default:
			http.Error(w, "endpoint not found", http.StatusNotFound)
		}
	})

	if adminHandlers.Enabled() {
		mux.HandleFunc("/admin/sessions/", adminHandlers.DisconnectSession)
	}

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints(admin bool) {
	logger.Info("🔗 API endpoints:")
	logger.Info("   POST /login")
	logger.Info("   POST /register")
	logger.Info("   GET  /rooms")
	logger.Info("   POST /rooms")
	logger.Info("   GET  /rooms/{id}/members")
	logger.Info("   GET  /rooms/{id}/messages")
	logger.Info("   POST /rooms/{id}/invite")
	logger.Info("   DELETE /rooms/{id}/leave")
	logger.Info("   GET  /rooms/{id}/active")
	logger.Info("   DELETE /rooms/{id}")
	if admin {
		logger.Info("   DELETE /admin/sessions/{id}")
	}
}
