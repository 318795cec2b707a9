// Package logger builds the zap loggers used across typhoon.
package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a console logger writing to stdout, at debug level when
// debug is set.
func NewLogger(debug bool) *zap.Logger {
	return NewLoggerWithWriters(debug, os.Stdout)
}

// NewLoggerWithWriters is NewLogger writing to every writer.
func NewLoggerWithWriters(debug bool, writers ...io.Writer) *zap.Logger {
	return New(WithDebug(debug), WithWriters(writers...))
}

// New builds a logger from options. Without options it logs at info level,
// console encoded, to stdout, with the caller annotated.
func New(opts ...Option) *zap.Logger {
	c := &config{
		level:  zap.InfoLevel,
		source: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return zap.New(c.core(), c.zapOptions()...)
}

// Multi returns a logger that writes every entry to all loggers.
func Multi(loggers ...*zap.Logger) *zap.Logger {
	cores := make([]zapcore.Core, 0, len(loggers))
	for _, l := range loggers {
		cores = append(cores, l.Core())
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// NewWithFile returns a console logger writing to console that also appends
// JSON entries to the file at path when path is not empty. The returned
// function closes the file.
func NewWithFile(debug bool, console io.Writer, path string) (*zap.Logger, func() error, error) {
	base := NewLoggerWithWriters(debug, console)
	if path == "" {
		return base, func() error { return nil }, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := New(WithDebug(debug), WithJSON(true), WithWriter(f))
	return Multi(base, file), f.Close, nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

type config struct {
	level   zapcore.Level
	json    bool
	source  bool
	writers []io.Writer
}

func (c *config) core() zapcore.Core {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if c.json {
		encoderConfig.MessageKey = "msg"
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	writers := c.writers
	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}
	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, w := range writers {
		syncers = append(syncers, zapcore.AddSync(w))
	}

	return zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), c.level)
}

func (c *config) zapOptions() []zap.Option {
	if c.source {
		return []zap.Option{zap.AddCaller()}
	}
	return nil
}
