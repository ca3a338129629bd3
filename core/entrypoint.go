package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/encodeous/sospf/state"
	"github.com/encodeous/sospf/transport"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/sync/errgroup"
)

// Shell drives a running router, usually from the operator's terminal. The router stops when it returns.
type Shell func(ctx context.Context, r *Router) error

var ErrShellExited = errors.New("shell exited")

func NewLogger(cfg state.LocalCfg, logLevel slog.Level) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: string(cfg.Id),
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// Start runs a router until it quits, the shell returns, or the process is signalled.
func Start(cfg state.LocalCfg, logLevel slog.Level, shell Shell) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(context.Canceled)

	cfg.ApplyDefaults()
	logger, err := NewLogger(cfg, logLevel)
	if err != nil {
		return err
	}

	env := &state.Env{
		LocalCfg: cfg,
		Context:  ctx,
		Cancel:   cancel,
		Log:      logger,
	}

	ln, err := transport.Listen(cfg.Bind, logger)
	if err != nil {
		return err
	}
	r := NewRouter(env, transport.NewDialer())
	defer r.Close()

	logger.Info("router started", "addr", cfg.Id, "bind", ln.Addr().String())

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ln.Serve(gctx, r.Handle)
	})
	g.Go(func() error {
		err := shell(gctx, r)
		cancel(ErrShellExited)
		return err
	})
	if cfg.DebugBind != "" {
		g.Go(func() error {
			return serveDebug(gctx, cfg.DebugBind, logger)
		})
	}

	err = g.Wait()
	logger.Info("router stopped", "reason", context.Cause(ctx).Error())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveDebug exposes expvar and the perf metrics until ctx ends.
func serveDebug(ctx context.Context, bind string, log *slog.Logger) error {
	srv := &http.Server{Addr: bind, ReadHeaderTimeout: 5 * time.Second}
	stop := context.AfterFunc(ctx, func() {
		_ = srv.Close()
	})
	defer stop()
	log.Info("serving metrics", "url", "http://"+bind+"/debug/metrics")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	log.Warn("debug server failed", "error", err)
	return nil
}
