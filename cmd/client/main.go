package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tradecircle/tradesync/internal/infrastructure/gateway"
	"github.com/tradecircle/tradesync/internal/infrastructure/logger"
	"github.com/tradecircle/tradesync/internal/infrastructure/storage"
	"github.com/tradecircle/tradesync/internal/usecase"
	"github.com/tradecircle/tradesync/internal/web"
)

type Config struct {
	User struct {
		ID string `yaml:"id"`
	} `yaml:"user"`
	Store struct {
		WSEndpoint     string `yaml:"ws_endpoint"`
		RESTEndpoint   string `yaml:"rest_endpoint"`
		WriteTimeoutMs int    `yaml:"write_timeout_ms"`
	} `yaml:"store"`
	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`
	Logging struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// 1. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Offline Cache
	cache, err := storage.NewSQLiteCache(cfg.Cache.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite cache", zap.Error(err))
	}
	defer cache.Close()

	// 4. Init Gateway
	store := gateway.New(cfg.Store.WSEndpoint, cfg.Store.RESTEndpoint, log)

	// 5. Init Session
	session := usecase.NewSession(cfg.User.ID, store, cache, log)
	if cfg.Store.WriteTimeoutMs > 0 {
		session.Coordinator().SetWriteTimeout(time.Duration(cfg.Store.WriteTimeoutMs) * time.Millisecond)
	}

	if err := session.Start(context.Background()); err != nil {
		log.Fatal("Failed to start session", zap.String("userId", cfg.User.ID), zap.Error(err))
	}

	// 6. Web Server
	server := web.NewServer(cfg.Server.Port, session, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Web server failed", zap.Error(err))
		}
	}()

	// 7. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Web server shutdown failed", zap.Error(err))
	}
	if err := session.Close(); err != nil {
		log.Error("Session close failed", zap.Error(err))
	}
}
