package http

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/ekisa-team/ttsd/internal/config"
	"github.com/ekisa-team/ttsd/internal/metrics"
	"github.com/ekisa-team/ttsd/internal/service"
)

// APITitle is the OpenAPI title.
const APITitle = "ttsd"

// RouterDeps are the services and settings the router is built from.
type RouterDeps struct {
	TTS     *service.TTS
	Bark    *service.Bark
	Metrics *metrics.Metrics
	Server  config.ServerConfig
	Version string
}

// NewRouter registers all operations and returns the wrapped handler together with the huma API.
func NewRouter(deps RouterDeps) (http.Handler, huma.API) {
	mux := http.NewServeMux()

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	cfg := huma.DefaultConfig(APITitle, version)
	cfg.Info.Description = "Text-to-speech synthesis over HTTP."
	// Response bodies keep the exact documented shapes, without $schema links.
	cfg.CreateHooks = nil

	api := humago.New(mux, cfg)

	NewTTSHandler(api, deps.TTS, deps.Bark)
	NewHealthHandler(api, deps.TTS)

	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	handler := Chain(mux,
		Recover(),
		RequestID(),
		CORS(deps.Server.CORSOrigins),
		RateLimit(deps.Server.RateLimit, deps.Server.Burst, deps.Metrics, "/health", "/metrics"),
		Timeout(deps.Server.RequestTimeout),
		Logging(deps.Metrics),
	)

	return handler, api
}
