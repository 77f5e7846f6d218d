package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kkingfung/CavalryFight-sub004/internal/hub"
	"github.com/kkingfung/CavalryFight-sub004/internal/ws"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", CreateRoom(h, log))
	r.Get("/rooms/{code}", RoomInfo(h))
	r.Get("/ws", ws.Handler(h, log))
	r.Get("/healthz", Healthz)
	return r
}
