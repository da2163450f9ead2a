// Package logger sets up the council service's global loggers: zerolog for
// call-site logging and a zap sugar for per-deliberation summaries.
package logger

import (
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"go.uber.org/zap"
)

// Service names this process in every log line.
const Service = "llm-council"

var Logger *zap.Logger

type levelFlags struct {
	debug, trace, info bool
}

// levelFor picks the zerolog level: dev and test log everything, anything
// else logs info and above, and a flag wins over the environment. The
// returned string says where the level came from.
func levelFor(environment string, flags levelFlags) (zerolog.Level, string) {
	switch {
	case flags.debug:
		return zerolog.DebugLevel, "--debug"
	case flags.trace:
		return zerolog.TraceLevel, "--trace"
	case flags.info:
		return zerolog.InfoLevel, "--info"
	}
	switch environment {
	case "dev", "test":
		return zerolog.TraceLevel, "environment"
	default:
		return zerolog.InfoLevel, "environment"
	}
}

func environment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ENVIRONMENT")))
	if env == "" {
		return "prod"
	}
	return env
}

func newZap(env string) *zap.Logger {
	var (
		z   *zap.Logger
		err error
	)
	if env == "prod" {
		z, err = zap.NewProduction()
	} else {
		z, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Warn().Err(err).Msg("zap unavailable, deliberation summaries disabled")
		return zap.NewNop()
	}
	return z.With(zap.String("service", Service), zap.String("environment", env))
}

// Init loads .env when present, routes zerolog to stderr with caller info and
// builds the zap logger behind Sugar. Level flags (--debug, --trace, --info)
// are parsed here, so call it first in main:
//
//	logger.Init()
//	defer logger.Logger.Sync()
func Init() {
	dotenv := godotenv.Load() == nil

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Str("service", Service).Caller().Logger()

	var flags levelFlags
	flag.BoolVar(&flags.debug, "debug", false, "sets log level to debug")
	flag.BoolVar(&flags.trace, "trace", false, "sets log level to trace")
	flag.BoolVar(&flags.info, "info", false, "sets log level to info (default)")
	flag.Parse()

	env := environment()
	level, source := levelFor(env, flags)
	zerolog.SetGlobalLevel(level)
	if env != "dev" && env != "test" && env != "prod" {
		log.Warn().Str("environment", env).Msg("unknown environment, using production log level")
	}

	Logger = newZap(env)

	log.Info().
		Str("environment", env).
		Str("level", level.String()).
		Str("level_source", source).
		Bool("dotenv", dotenv).
		Msg("council logging ready")
}

// Sugar returns a sugared logger for easier use. Before Init it returns a
// no-op logger so library code and tests can call it freely.
func Sugar() *zap.SugaredLogger {
	if Logger == nil {
		return zap.NewNop().Sugar()
	}
	return Logger.Sugar()
}
