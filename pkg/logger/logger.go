package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger
type Logger struct {
	zerolog.Logger
}

// New creates a new logger instance
func New(serviceName string, environment string) *Logger {
	var output io.Writer = os.Stdout

	if environment == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return &Logger{Logger: logger}
}

// NewWithLevel creates a logger and applies the textual level ("debug", "info", ...).
// Unknown levels fall back to info.
func NewWithLevel(serviceName, environment, level string) *Logger {
	l := New(serviceName, environment)
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	l.Logger = l.Logger.Level(lvl)
	return l
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithComponent returns a logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("component", component).Logger(),
	}
}

// WithProduct returns a logger scoped to a product
func (l *Logger) WithProduct(productID string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("product_id", productID).Logger(),
	}
}

// WithOrder returns a logger scoped to a purchase order
func (l *Logger) WithOrder(orderID string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("order_id", orderID).Logger(),
	}
}
