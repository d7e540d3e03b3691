// Package server 通过 HTTP 暴露文本转语音接口。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/iabetor/accentts/internal/core"
	"github.com/iabetor/accentts/internal/logger"
)

// Generator 是流水线入口，通常是 *pipeline.Pipeline。
type Generator interface {
	Generate(ctx context.Context, text, override string) ([]byte, error)
}

// Options 配置 HTTP 层。
type Options struct {
	MaxTextChars           int
	AllowReferenceOverride bool
	CORSOrigins            []string
	// RateLimit 每秒请求数，<= 0 表示不限流。
	RateLimit float64
	RateBurst int
	// StaticDir 存在时在 / 提供 index.html，在 /static/ 提供静态文件。
	StaticDir string
	// Ready 用于 /healthz 检查依赖（如模型 sidecar），可为空。
	Ready func(ctx context.Context) error
	// ReloadReference 清空参考音频和音色缓存，返回被清掉的路径。为空时不注册该路由。
	ReloadReference func() []string
}

// Server 是 HTTP 处理器集合。
type Server struct {
	gen     Generator
	opts    Options
	limiter *rate.Limiter
}

type ttsRequest struct {
	Text      string `json:"text"`
	Reference string `json:"reference,omitempty"`
}

type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// New 创建服务。
func New(gen Generator, opts Options) *Server {
	if opts.MaxTextChars <= 0 {
		opts.MaxTextChars = 5000
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	s := &Server{gen: gen, opts: opts}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.With(s.rateLimit).Post("/api/tts", s.handleTTS)
	if s.opts.ReloadReference != nil {
		r.Post("/api/reference/reload", s.handleReload)
	}

	if s.opts.StaticDir != "" {
		index := filepath.Join(s.opts.StaticDir, "index.html")
		if _, err := os.Stat(index); err == nil {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.ServeFile(w, r, index)
			})
		}
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.opts.StaticDir))))
	}
	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "请求过于频繁，请稍后再试", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error(), "")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	paths := s.opts.ReloadReference()
	if paths == nil {
		paths = []string{}
	}
	logger.Infof("[server] 已清空参考音频缓存 (%d 个)", len(paths))
	writeJSON(w, http.StatusOK, map[string]any{"cleared": paths})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("请求体不是合法的 JSON: %v", err), "")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required", core.KindTextValidation.String())
		return
	}
	if n := utf8.RuneCountInString(text); n > s.opts.MaxTextChars {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("text too long (max %d chars)", s.opts.MaxTextChars), core.KindTextValidation.String())
		return
	}

	override := ""
	if req.Reference != "" {
		if !s.opts.AllowReferenceOverride {
			writeError(w, http.StatusBadRequest, "不允许在请求中指定参考音频", "")
			return
		}
		override = req.Reference
	}

	mp3, err := s.gen.Generate(r.Context(), text, override)
	if err != nil {
		status := statusFor(err)
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			logger.Infof("[server] 客户端已断开: %v", err)
			return
		}
		logger.Warnf("[server] /api/tts 失败 (%d): %v", status, err)
		writeError(w, status, err.Error(), core.KindOf(err).String())
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", "attachment; filename=tts_output.mp3")
	w.Header().Set("Content-Length", fmt.Sprint(len(mp3)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(mp3)
}

// statusFor 把错误类别映射为 HTTP 状态码。
func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindTextValidation:
		return http.StatusBadRequest
	case core.KindReferenceNotFound, core.KindModelLoad:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail, code string) {
	writeJSON(w, status, errorResponse{Detail: detail, ErrorCode: code})
}
