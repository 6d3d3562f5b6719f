package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// cartEvents streams the cart as Server-Sent Events. Every ObserveCart
// emission becomes one "cart" event carrying the items and the total.
func (h *Handler) cartEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)
	rc := http.NewResponseController(w)

	// The stream outlives any server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		lg.Debug("Clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	for items, err := range h.cart.ObserveCart(ctx) {
		e.Reset()
		event := "cart"
		if err != nil {
			event = "error"
			encodeError(err)(e)
			lg.Error("Cart observation failed", zap.Error(err))
		} else {
			encodeCart(e, items)
			lg.Debug("Cart emitted", zap.Int("lines", len(items)))
		}

		if _, err := w.Write(sseFrame(event, e.Bytes())); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			lg.Debug("Flush event stream", zap.Error(err))
			return
		}
	}
}

func sseFrame(event string, data []byte) []byte {
	frame := make([]byte, 0, len(event)+len(data)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, event...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	return append(frame, "\n\n"...)
}
