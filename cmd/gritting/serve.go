package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/lox/gritting/internal/api"
	"github.com/lox/gritting/internal/briefing"
	"github.com/lox/gritting/internal/gritting"
	"github.com/lox/gritting/internal/sweep"
	"github.com/lox/gritting/internal/weather"
)

type ServeCmd struct {
	RouteFlags `embed:""`

	Addr              string        `help:"Listen address." default:":8080" env:"GRITTING_ADDR"`
	Models            string        `help:"Model artifact prefix." default:"models/gritting" env:"GRITTING_MODELS"`
	SweepInterval     time.Duration `help:"Run a weather sweep over all routes at this interval (0 disables)." default:"0" env:"GRITTING_SWEEP_INTERVAL"`
	OpenWeatherAPIKey string        `help:"OpenWeatherMap API key, used when Open-Meteo fails." env:"OPENWEATHER_API_KEY"`
	OpenAIAPIKey      string        `help:"OpenAI API key for shift briefings." env:"OPENAI_API_KEY"`
}

func (c *ServeCmd) Run(g *Globals, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(g.DB, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("database migrated", "path", g.DB)

	routes, err := loadRoutes(ctx, c.RouteFlags, st, logger)
	if err != nil {
		return err
	}

	predictor := gritting.NewPredictor(routes, loadModels(c.Models, logger), logger)
	wx := weather.Default(c.OpenWeatherAPIKey, logger)

	gen, err := briefing.New(c.OpenAIAPIKey, logger)
	if errors.Is(err, briefing.ErrNotConfigured) {
		logger.Info("briefings disabled: no OpenAI API key")
	} else if err != nil {
		return err
	}

	if c.SweepInterval > 0 {
		sw := sweep.New(predictor, routes.Routes(), wx, st, logger)
		go sw.Run(ctx, c.SweepInterval)
	}

	server := api.NewServer(api.Config{
		Addr:      c.Addr,
		Predictor: predictor,
		Routes:    routes,
		History:   st,
		Weather:   wx,
		Briefing:  gen,
		Logger:    logger,
	})
	return server.Run(ctx)
}
