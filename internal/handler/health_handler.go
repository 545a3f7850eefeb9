package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// Pinger はデータストアの疎通確認インターフェース。
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc は関数をPingerとして扱うアダプタ。
type PingerFunc func(ctx context.Context) error

// Ping はf(ctx)を呼び出す。
func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewHealthHandler はデータストアへの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := pinger.Ping(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}

		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
