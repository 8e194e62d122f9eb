// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/sirfilior/jass/internal/auth"
	"github.com/sirfilior/jass/internal/cache"
	"github.com/sirfilior/jass/internal/database"
	"github.com/sirfilior/jass/internal/handlers"
	"github.com/sirfilior/jass/internal/middleware"
)

func main() {
	auth.Init()
	database.ConnectDB()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Historian is optional; rooms play fine without Redis.
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("play historian disabled: %v", err)
	}

	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler)

	// room server
	rs := handlers.NewRoomServer()

	mux.Handle("/room/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		rs.CreateRoomHandler,
	)))
	mux.Handle("/room/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(logger, rs),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
