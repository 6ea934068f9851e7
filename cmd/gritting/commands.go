package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lox/gritting/internal/gritting"
	"github.com/lox/gritting/internal/models"
	"github.com/lox/gritting/internal/modelstore"
	"github.com/lox/gritting/internal/sweep"
	"github.com/lox/gritting/internal/weather"
)

type PredictCmd struct {
	RouteFlags `embed:""`

	RouteID           string `arg:"" help:"Route to predict."`
	Weather           string `help:"Weather JSON file ('-' for stdin). Live weather is fetched when empty." placeholder:"FILE"`
	Models            string `help:"Model artifact prefix." default:"models/gritting" env:"GRITTING_MODELS"`
	OpenWeatherAPIKey string `help:"OpenWeatherMap API key, used when Open-Meteo fails." env:"OPENWEATHER_API_KEY"`
	Record            bool   `help:"Append the prediction to the history table."`
}

func (c *PredictCmd) Run(g *Globals, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(g.DB, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	routes, err := loadRoutes(ctx, c.RouteFlags, st, logger)
	if err != nil {
		return err
	}
	m, err := modelstore.Load(c.Models)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}
	predictor := gritting.NewPredictor(routes, m, logger)

	route, ok := routes.Route(c.RouteID)
	if !ok {
		return fmt.Errorf("route %q: %w", c.RouteID, gritting.ErrRouteNotFound)
	}

	var (
		w      models.WeatherData
		source = "manual"
	)
	if c.Weather != "" {
		if w, err = readWeather(c.Weather); err != nil {
			return err
		}
	} else {
		if !route.HasLocation() {
			return fmt.Errorf("route %s has no coordinates; pass --weather", c.RouteID)
		}
		w, source, err = weather.Default(c.OpenWeatherAPIKey, logger).Fetch(ctx, route.Latitude.Float64, route.Longitude.Float64)
		if err != nil {
			return err
		}
	}

	pred, err := predictor.Predict(c.RouteID, w)
	if err != nil {
		return err
	}
	if c.Record {
		if err := st.InsertPrediction(&models.HistoryRecord{Weather: w, WeatherSource: source, Prediction: pred}); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"prediction":     pred,
		"weather":        w,
		"weather_source": source,
	})
}

func readWeather(path string) (models.WeatherData, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return models.WeatherData{}, err
		}
		defer f.Close()
		r = f
	}

	var w models.WeatherData
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return models.WeatherData{}, fmt.Errorf("decode weather: %w", err)
	}
	return w, nil
}

type SweepCmd struct {
	RouteFlags `embed:""`

	Models            string `help:"Model artifact prefix." default:"models/gritting" env:"GRITTING_MODELS"`
	OpenWeatherAPIKey string `help:"OpenWeatherMap API key, used when Open-Meteo fails." env:"OPENWEATHER_API_KEY"`
}

func (c *SweepCmd) Run(g *Globals, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(g.DB, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	routes, err := loadRoutes(ctx, c.RouteFlags, st, logger)
	if err != nil {
		return err
	}
	m, err := modelstore.Load(c.Models)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}

	sw := sweep.New(gritting.NewPredictor(routes, m, logger), routes.Routes(),
		weather.Default(c.OpenWeatherAPIKey, logger), st, logger)
	res, err := sw.Sweep(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tDECISION\tSALT KG\tICE\tSNOW\tRECOMMENDATION")
	for _, p := range res.Predictions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", p.RouteID, p.GrittingDecision, p.SaltAmountKg, p.IceRisk, p.SnowRisk, p.Recommendation)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d routes, %d gritting, %d skipped, %d failed\n", res.Total, res.Gritting, res.Skipped, res.Failed)
	if res.Failed > 0 && res.Failed+res.Skipped == res.Total {
		return errors.New("sweep: every located route failed")
	}
	return nil
}

type RoutesImportCmd struct {
	File string `arg:"" help:"Routes CSV file." type:"existingfile"`
}

func (c *RoutesImportCmd) Run(g *Globals, logger *slog.Logger) error {
	st, err := openStore(g.DB, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := st.ImportRoutesCSV(f)
	if err != nil {
		return err
	}
	logger.Info("routes imported", "file", c.File, "count", n)
	return nil
}

type RoutesListCmd struct{}

func (c *RoutesListCmd) Run(g *Globals, logger *slog.Logger) error {
	st, err := openStore(g.DB, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	routes, err := st.GetRoutes()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRIORITY\tROAD\tKM\tLAT\tLON")
	for _, r := range routes {
		lat, lon := "-", "-"
		if r.HasLocation() {
			lat = fmt.Sprintf("%.4f", r.Latitude.Float64)
			lon = fmt.Sprintf("%.4f", r.Longitude.Float64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.1f\t%s\t%s\n", r.RouteID, r.RouteName, r.Priority, r.RoadType, r.RouteLengthKm, lat, lon)
	}
	return tw.Flush()
}

type ModelsFetchCmd struct {
	Addr     string        `help:"FTP server host:port." required:"" env:"GRITTING_FTP_ADDR"`
	User     string        `help:"FTP user." env:"GRITTING_FTP_USER"`
	Password string        `help:"FTP password." env:"GRITTING_FTP_PASSWORD"`
	Dir      string        `help:"Remote directory holding the artifacts." default:"/" env:"GRITTING_FTP_DIR"`
	Timeout  time.Duration `help:"Connection timeout." default:"30s"`
	Models   string        `help:"Local model artifact prefix." default:"models/gritting" env:"GRITTING_MODELS"`
}

func (c *ModelsFetchCmd) Run(logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(c.Models), 0o755); err != nil {
		return err
	}
	paths, err := modelstore.FetchFTP(ctx, modelstore.FTPSource{
		Addr:     c.Addr,
		User:     c.User,
		Password: c.Password,
		Dir:      c.Dir,
		Timeout:  c.Timeout,
	}, c.Models, logger)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}

	if _, err := modelstore.Load(c.Models); err != nil {
		return fmt.Errorf("fetched artifacts do not load: %w", err)
	}
	return nil
}

type ModelsCheckCmd struct {
	Models string `help:"Model artifact prefix." default:"models/gritting" env:"GRITTING_MODELS"`
}

func (c *ModelsCheckCmd) Run(logger *slog.Logger) error {
	m, err := modelstore.Load(c.Models)
	if err != nil {
		return err
	}
	fmt.Printf("models ok: %d features, %d precipitation codes\n", gritting.NumFeatures, len(m.Encoding))
	if missing := m.Encoding.Missing(); len(missing) > 0 {
		fmt.Printf("  warning: no code for %v, predictions fall back to 0\n", missing)
	}
	for i, name := range gritting.FeatureNames {
		fmt.Printf("  %2d %s\n", i, name)
	}
	return nil
}
