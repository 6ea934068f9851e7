package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	_ "modernc.org/sqlite"
)

type Globals struct {
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" env:"LOG_LEVEL"`
	LogFormat string `help:"Log format." default:"text" enum:"text,json" env:"LOG_FORMAT"`
	DB        string `help:"Path to SQLite database." default:"data/gritting.db" env:"GRITTING_DB" type:"path"`
}

type CLI struct {
	Globals

	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`

	Serve   ServeCmd   `cmd:"" help:"Run the prediction API."`
	Predict PredictCmd `cmd:"" help:"Predict gritting for a single route and print the result."`
	Sweep   SweepCmd   `cmd:"" help:"Predict every located route from live weather and exit."`

	Routes struct {
		Import RoutesImportCmd `cmd:"" help:"Import routes from a CSV file into the database."`
		List   RoutesListCmd   `cmd:"" help:"List routes in the database."`
	} `cmd:"" help:"Manage the route table."`

	Models struct {
		Fetch ModelsFetchCmd `cmd:"" help:"Download model artifacts from an FTP drop."`
		Check ModelsCheckCmd `cmd:"" help:"Load model artifacts and verify the feature contract."`
	} `cmd:"" help:"Manage model artifacts."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("gritting"),
		kong.Description("Road gritting decision and salt amount predictions."),
		kong.UsageOnError(),
	)

	logger := newLogger(cli.LogLevel, cli.LogFormat)
	err := ctx.Run(&cli.Globals, logger)
	ctx.FatalIfErrorf(err)
}

func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
