// Command cacheserver wires a Config-selected Store and LoaderWriter into a
// CacheEngine and surfaces it over HTTP via restgateway, mirroring the
// teacher's restapi/main/main.go wiring.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/sharedcode/tiercache"
	_ "github.com/sharedcode/tiercache/loaderwriter"
	"github.com/sharedcode/tiercache/restgateway"
	"github.com/sharedcode/tiercache/store"
)

// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file; defaults to an in-memory, store-only cache")
	addr := flag.String("addr", "localhost:8080", "address to listen on")
	flag.Parse()

	tiercache.ConfigureLogging()

	cfg := tiercache.DefaultConfig()
	if *configPath != "" {
		loaded, err := tiercache.LoadConfig(*configPath)
		if err != nil {
			slog.Error("loading config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	s := store.NewStringStore[string](store.WithShardCount[string, string](cfg.StoreShardCount))

	var lw tiercache.LoaderWriter[string, string]
	if cfg.Backend.Type == tiercache.NoBackend {
		lw = tiercache.NoopLoaderWriter[string, string]{}
	} else {
		built, err := tiercache.NewLoaderWriter[string, string](cfg.Backend)
		if err != nil {
			slog.Error("building loader/writer", "error", err)
			os.Exit(1)
		}
		lw = built
	}

	observers := tiercache.NewAtomicObservers()
	dispatcher := tiercache.NewChannelEventDispatcher()

	engine := tiercache.New[string, string](s, lw,
		tiercache.WithUseLoaderInAtomics[string, string](cfg.UseLoaderInAtomics),
		tiercache.WithObservers[string, string](observers),
		tiercache.WithEventDispatcher[string, string](dispatcher),
	)
	defer engine.Close()

	srv := restgateway.New(engine)
	slog.Info("cacheserver listening", "addr", *addr, "backend", cfg.Backend.TypeName)
	if err := srv.Run(*addr); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
