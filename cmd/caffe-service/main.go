package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/caffe/internal/app"
)

const envConfigPath = app.EnvPrefix + "CONFIG"

// configPath выбирает путь к YAML: флаг важнее переменной окружения.
func configPath(flagValue string, lookup func(string) (string, bool)) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v, ok := lookup(envConfigPath); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func main() {
	var cfgFlag string
	flag.StringVar(&cfgFlag, "config", "", "path to YAML config (fallback: "+envConfigPath+")")
	flag.Parse()

	cfg, err := app.LoadConfig(configPath(cfgFlag, os.LookupEnv))
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	logCloser, err := app.ConfigureLogging(cfg.Log)
	if err != nil {
		log.WithError(err).Fatal("не удалось настроить логирование")
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr": cfg.HTTP.Addr,
		"storage":   cfg.Storage.Driver,
	}).Info("запускаем caffe service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("приложение завершилось с ошибкой")
		_ = logCloser.Close()
		os.Exit(1)
	}

	log.Info("caffe service остановлен")
}
