package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/homellm/homechat/auth"
	"github.com/homellm/homechat/config"
	"github.com/homellm/homechat/imagecache"
	"github.com/homellm/homechat/proxy"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Secrets may live in .env next to the binary.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARNING] Failed to load .env: %v", err)
	}

	cfgManager, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg := cfgManager.Get()

	// Configure rotating file logging if a log file is specified
	if cfg.Log.File != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge,
			Compress:   cfg.Log.Compress,
		})
	}

	store, err := imagecache.NewStore(cfg.Cache.Dir, cfg.Cache.MaxFiles, cfg.Cache.KeepFiles)
	if err != nil {
		log.Fatalf("Failed to init image cache: %v", err)
	}

	securityStore, err := auth.NewFileSecurityStore(cfg.Auth.SecurityFile, cfg.Auth.MaxLoginAttempts)
	if err != nil {
		log.Fatalf("Failed to init security store: %v", err)
	}

	sessions := auth.NewSessions(cfg.Auth.SessionSecret, time.Duration(cfg.Auth.SessionLifetime)*time.Second)
	authHandler := auth.NewHandler(cfg, sessions, securityStore)
	apiHandler := proxy.NewHandler(cfg, store)

	cfgManager.OnReload(func(newCfg *config.Config) {
		authHandler.UpdateConfig(newCfg)
		apiHandler.UpdateConfig(newCfg)
	})

	if err := cfgManager.StartWatching(); err != nil {
		log.Printf("[WARNING] Failed to start config watcher: %v", err)
	} else {
		defer cfgManager.StopWatching()
	}

	gate := sessions.Gate

	router := mux.NewRouter()
	router.HandleFunc("/api/auth/login", authHandler.HandleLogin).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/check", authHandler.HandleCheck).Methods(http.MethodGet)
	router.HandleFunc("/images/cache/{filename}", apiHandler.HandleCacheFile).Methods(http.MethodGet)
	router.HandleFunc("/api/upload", gate(apiHandler.HandleUpload)).Methods(http.MethodPost)
	router.HandleFunc("/api/chat/completions", gate(apiHandler.HandleChat)).Methods(http.MethodPost)
	router.HandleFunc("/api/chat/generate-title", gate(apiHandler.HandleGenerateTitle)).Methods(http.MethodPost)
	router.HandleFunc("/api/images/generations", gate(apiHandler.HandleImageGenerations)).Methods(http.MethodPost)
	router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir)))

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cfgManager.StopWatching()
		os.Exit(0)
	}()

	addr := cfg.Bind + cfg.Listen
	log.Printf("Starting server on %s (cache: %s)", addr, cfg.Cache.Dir)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
