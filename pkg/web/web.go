package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/sirrobot01/zipfetch/internal/config"
	"github.com/sirrobot01/zipfetch/internal/logger"
	"github.com/sirrobot01/zipfetch/internal/request"
	"github.com/sirrobot01/zipfetch/pkg/zip"
)

// Web serves the archive API: entry listings, entry contents and byte
// slices of decompressed entries, all backed by ranged reads against the
// remote archive.
type Web struct {
	logger zerolog.Logger
	client *request.Client
}

func New() *Web {
	cfg := config.Get()
	_logger := logger.New("web")

	opts := []request.Option{
		request.WithLogger(_logger),
		request.WithMaxRetries(cfg.MaxRetries),
		request.WithRetryableStatus(http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable),
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, request.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	if cfg.Proxy != "" {
		opts = append(opts, request.WithProxy(cfg.Proxy))
	}
	if limiter, err := request.ParseRateLimit(cfg.FetchRateLimit); err != nil {
		_logger.Warn().Err(err).Msg("Ignoring invalid fetch rate limit")
	} else if limiter != nil {
		opts = append(opts, request.WithRateLimiter(limiter))
	}

	return &Web{
		logger: _logger,
		client: request.New(opts...),
	}
}

func (wb *Web) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(wb.authorize)
	r.Get("/entries", wb.handleListEntries)
	r.Get("/entries/*", wb.handleReadEntry)
	r.Get("/entry-bytes/*", wb.handleEntryBytes)
	r.Get("/archive-size", wb.handleArchiveSize)
	return r
}

// authorize admits requests that carry the configured API token or valid
// basic auth credentials. With neither, the archive URL must match one of
// the allowed prefixes.
func (wb *Web) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := config.Get()
		if cfg.UseAuth {
			if config.VerifyToken(r.Header.Get("Authorization")) {
				next.ServeHTTP(w, r)
				return
			}
			if username, password, ok := r.BasicAuth(); ok && config.VerifyAuth(username, password) {
				next.ServeHTTP(w, r)
				return
			}
		}
		if !cfg.IsURLAllowed(r.URL.Query().Get("url")) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (wb *Web) openArchive(ctx context.Context, url string) (*zip.Archive, error) {
	verify := config.Get().ChecksumVerification()
	opts := []zip.Option{
		zip.WithClient(wb.client),
		zip.WithLogger(wb.logger),
	}
	if !verify {
		opts = append(opts, zip.WithoutChecksum())
	}
	return zip.Open(ctx, url, opts...)
}
