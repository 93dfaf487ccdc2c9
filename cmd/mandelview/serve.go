// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gogpu/mandel"
)

//go:embed index.html
var indexHTML []byte

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr string
		fps  float64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Explore in the browser over a websocket",
		Long: `Serves a page at / that shows the shared session and sends commands back
over /ws. Prometheus metrics are exposed at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			log, closer, err := opts.logger(os.Stderr)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, log, addr, fps)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "listen address")
	cmd.Flags().Float64Var(&fps, "fps", 10, "maximum frames per second pushed to each client")
	return cmd
}

func runServe(ctx context.Context, cfg mandel.Config, log *slog.Logger, addr string, fps float64) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h := newHub()
	s, err := mandel.NewSession(cfg,
		mandel.WithLogger(log),
		mandel.WithRegisterer(reg),
		mandel.WithPassObserver(h.observe),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(s, log, reg, h, fps).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serve: listening", "url", "http://"+addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// =============================================================================
// Frame fan-out
// =============================================================================

// hub fans completed-pass notifications out to the connected clients.
type hub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan struct{}]struct{})}
}

// observe is the session's pass observer. It never blocks.
func (h *hub) observe(ev mandel.PassEvent) {
	if ev.Result != mandel.PassCompleted {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *hub) subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// =============================================================================
// HTTP and websocket handlers
// =============================================================================

// command is a client request sent as JSON over the websocket.
type command struct {
	Op     string  `json:"op"`
	Factor float64 `json:"factor,omitempty"`
	X      int     `json:"x,omitempty"`
	Y      int     `json:"y,omitempty"`
	Re     string  `json:"re,omitempty"`
	Im     string  `json:"im,omitempty"`
}

// frameHeader precedes every PNG frame on the websocket.
type frameHeader struct {
	Type       string `json:"type"`
	Generation uint64 `json:"generation"`
	Budget     int    `json:"budget"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	CenterX    string `json:"center_x"`
	CenterY    string `json:"center_y"`
	HalfWidth  string `json:"half_width"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	Status     string `json:"status"`
}

type server struct {
	session *mandel.Session
	log     *slog.Logger
	reg     *prometheus.Registry
	hub     *hub
	fps     float64
}

func newServer(s *mandel.Session, log *slog.Logger, reg *prometheus.Registry, h *hub, fps float64) *server {
	if fps <= 0 {
		fps = 10
	}
	return &server{session: s, log: log, reg: reg, hub: h, fps: fps}
}

func (srv *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", srv.handleIndex)
	mux.HandleFunc("GET /frame.png", srv.handleFrame)
	mux.HandleFunc("/ws", srv.handleWS)
	mux.Handle("GET /metrics", promhttp.HandlerFor(srv.reg, promhttp.HandlerOpts{}))
	return mux
}

func (srv *server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// handleFrame serves the current frame as PNG. An optional width query
// parameter downscales it, keeping the aspect ratio.
func (srv *server) handleFrame(w http.ResponseWriter, r *http.Request) {
	f := srv.session.CurrentSurface()
	if f == nil || f.Image == nil {
		http.Error(w, "no frame", http.StatusServiceUnavailable)
		return
	}
	img := f.Image
	if q := r.URL.Query().Get("width"); q != "" {
		width, err := strconv.Atoi(q)
		if err != nil || width < 1 {
			http.Error(w, "width must be a positive integer", http.StatusBadRequest)
			return
		}
		b := img.Bounds()
		if width < b.Dx() {
			img = scaleFrame(img, width, max(b.Dy()*width/b.Dx(), 1), draw.CatmullRom)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Mandel-Generation", strconv.FormatUint(f.Generation, 10))
	_, _ = w.Write(buf.Bytes())
}

func (srv *server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		srv.log.Debug("serve: websocket accept", "error", err)
		return
	}
	defer c.CloseNow()

	frames, unsubscribe := srv.hub.subscribe()
	defer unsubscribe()

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return srv.readCommands(ctx, c) })
	g.Go(func() error { return srv.pushFrames(ctx, c, frames) })
	err = g.Wait()

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		srv.log.Debug("serve: client disconnected", "error", err)
	}
}

func (srv *server) readCommands(ctx context.Context, c *websocket.Conn) error {
	for {
		var cmd command
		if err := wsjson.Read(ctx, c, &cmd); err != nil {
			return err
		}
		srv.apply(cmd)
	}
}

// apply runs one client command. Unknown commands are ignored.
func (srv *server) apply(cmd command) {
	s := srv.session
	switch cmd.Op {
	case "zoom_in":
		s.ZoomIn()
	case "zoom_out":
		s.ZoomOut()
	case "zoom":
		s.Zoom(cmd.Factor)
	case "recenter":
		s.Recenter(mandel.PlanePoint{X: cmd.Re, Y: cmd.Im})
	case "recenter_at":
		s.RecenterAt(cmd.X, cmd.Y)
	case "increase_detail":
		s.IncreaseDetail()
	default:
		srv.log.Debug("serve: unknown command", "op", cmd.Op)
	}
}

// pushFrames sends the current frame now and after every completed pass,
// at most fps times per second.
func (srv *server) pushFrames(ctx context.Context, c *websocket.Conn, frames <-chan struct{}) error {
	limiter := rate.NewLimiter(rate.Limit(srv.fps), 1)
	var last uint64
	sent := false

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		data, hdr, ok, err := srv.nextFrame(last, sent)
		if err != nil {
			return err
		}
		if ok {
			if err := wsjson.Write(ctx, c, hdr); err != nil {
				return err
			}
			if err := c.Write(ctx, websocket.MessageBinary, data); err != nil {
				return err
			}
			last, sent = hdr.Generation, true
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-frames:
		}
	}
}

// nextFrame returns the current frame encoded as PNG, unless a frame was
// already sent and its generation is last. Nothing is encoded then.
func (srv *server) nextFrame(last uint64, sent bool) ([]byte, frameHeader, bool, error) {
	f := srv.session.CurrentSurface()
	if f == nil || f.Image == nil {
		return nil, frameHeader{}, false, errors.New("no frame")
	}
	if sent && f.Generation == last {
		return nil, frameHeader{}, false, nil
	}
	data, hdr, err := srv.encodeFrame(f)
	return data, hdr, err == nil, err
}

// encodeFrame encodes f as PNG.
func (srv *server) encodeFrame(f *mandel.Frame) ([]byte, frameHeader, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image); err != nil {
		return nil, frameHeader{}, fmt.Errorf("encode frame: %w", err)
	}
	b := f.Image.Bounds()
	return buf.Bytes(), frameHeader{
		Type:       "frame",
		Generation: f.Generation,
		Budget:     f.Budget,
		Width:      b.Dx(),
		Height:     b.Dy(),
		CenterX:    f.Viewport.CenterX,
		CenterY:    f.Viewport.CenterY,
		HalfWidth:  f.Viewport.HalfWidth,
		ElapsedMS:  f.Elapsed.Milliseconds(),
		Status:     status(srv.session),
	}, nil
}
