package command

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	openaio "github.com/vasialek/openaio-api"
	"github.com/vasialek/openaio-api/api"
	"github.com/vasialek/openaio-api/internal/config"
	mylog "github.com/vasialek/openaio-api/internal/log"
	"github.com/vasialek/openaio-api/source"
)

// serveCommand constructs the "serve" command. action receives the
// resolved flag values.
func serveCommand(cfg config.Type, action func(context.Context, settings) error) *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "serve the JSON API",
		UsageText: `openaio-api serve [options]`,
		Flags:     serveFlags(cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return action(ctx, settingsFrom(cmd))
		},
	}
}

func serve(ctx context.Context, s settings) error {
	if err := mylog.Configure(os.Stderr, s.LogLevel, s.LogFormat); err != nil {
		return err
	}

	client := source.NewClient(s.CommunityURL, s.ShopURL, s.HTTPTimeout)
	srv := &http.Server{
		Handler:           api.NewHandler(newCaches(client, s.TTL, log.Log), log.Log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("addr", ln.Addr().String()).Info("listening")
	return run(ctx, srv, ln, s.ShutdownTimeout)
}

// run serves on ln until ctx is done, then shuts srv down within timeout.
func run(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newCaches builds one cache per upstream page kind.
func newCaches(client *source.Client, ttl ttls, logger log.Interface) api.Caches {
	return api.Caches{
		Drops: newCache[openaio.NoKey, source.Drop]("drops",
			openaio.NoArg(client.Drops), ttl.Drops, logger,
			openaio.SliceCloner[[]source.Drop]()),
		DropProducts: newCache[string, source.DropProduct]("dropProducts",
			openaio.FetcherFunc[string, []source.DropProduct](client.DropProducts), ttl.DropProducts, logger,
			openaio.SliceClonerFunc[[]source.DropProduct](source.DropProduct.Clone)),
		Categories: newCache[openaio.NoKey, source.Category]("categories",
			openaio.NoArg(client.Categories), ttl.Categories, logger,
			openaio.SliceCloner[[]source.Category]()),
		Products: newCache[string, source.Product]("products",
			openaio.FetcherFunc[string, []source.Product](client.CategoryProducts), ttl.Products, logger,
			openaio.SliceCloner[[]source.Product]()),
	}
}

func newCache[K openaio.KeyConstraint, E any](name string, fetcher openaio.Fetcher[K, []E], ttl time.Duration, logger log.Interface, cloner openaio.ValueCloner[[]E]) *openaio.MemoCache[K, []E] {
	return openaio.NewMemoCache(fetcher, ttl,
		openaio.WithName[K, []E](name),
		openaio.WithCloner[K](cloner),
		openaio.WithLogger[K, []E](logger),
	)
}
