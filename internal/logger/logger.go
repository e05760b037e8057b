package logger

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global zerolog logger.
func Init(logLevelStr string, appEnv string) {
	InitWithWriter(logLevelStr, appEnv, os.Stdout)
}

// InitWithWriter is Init with an explicit sink. The CLI logs to stderr so
// command output stays clean.
func InitWithWriter(logLevelStr string, appEnv string, out io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	parsedLevel, err := zerolog.ParseLevel(strings.ToLower(logLevelStr))
	if err != nil || logLevelStr == "" {
		parsedLevel = zerolog.InfoLevel
		if err != nil {
			log.Warn().Err(err).Msgf("Invalid log level '%s', defaulting to 'info'", logLevelStr)
		}
	}
	zerolog.SetGlobalLevel(parsedLevel)

	output := out
	if env := strings.ToLower(appEnv); env == "development" || env == "dev" {
		output = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

// Component returns a child of the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// TokenPrefix returns at most n leading characters of a credential, for logs.
func TokenPrefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// RequestLogger writes one zerolog event per HTTP request.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final.
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			status := res.Status

			var evt *zerolog.Event
			switch {
			case status >= 500:
				evt = log.Error()
			case status >= 400:
				evt = log.Warn()
			default:
				evt = log.Info()
			}
			evt.Str("method", req.Method).
				Str("uri", req.RequestURI).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("requestId", res.Header().Get(echo.HeaderXRequestID)).
				Str("remoteIp", c.RealIP()).
				Msg("request")
			return nil
		}
	}
}
