// Package gateway is the public edge: it forwards /api/* to the shop service.
package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/orderflow-core/internal/httpx"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

const apiPrefix = "/api"

type Handler struct {
	shopProxy *ServiceProxy
	logger    *slog.Logger
}

func NewHandler(shopProxy *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		shopProxy: shopProxy,
		logger:    logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(apiPrefix+"/", telemetry.WithHTTPRoute(h.HandleAPI))
}

// HandleAPI strips the /api prefix and proxies the rest of the path.
func (h *Handler) HandleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, apiPrefix)
	if path == "" {
		path = "/"
	}
	h.proxyRequest(w, r, h.shopProxy, path)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy, path string) {
	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		httpx.WriteError(w, h.logger, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}
