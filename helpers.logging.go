package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const megabyte = 1 << 20

// RSyncWrite is a rotable and concurrent safe file-based logs writer used
// as zapcore.WriteSyncer. A new file is opened once the current one would
// grow beyond the configured max size (in MB).
type RSyncWrite struct {
	sync.Mutex
	clock  Clocker
	file   *os.File
	folder string
	max    int64
	size   int64
	isProd bool
}

// NewRSyncWriter creates the log folder if needed and returns a writer
// which lazily opens its first file on the first write.
func NewRSyncWriter(config *Config, clock Clocker) (*RSyncWrite, error) {
	if err := os.MkdirAll(config.LogFolder, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %w", err)
	}
	return &RSyncWrite{
		clock:  clock,
		folder: config.LogFolder,
		max:    int64(config.LogMaxSize) * megabyte,
		isProd: config.IsProduction,
	}, nil
}

// Close closes the current log file.
func (rsw *RSyncWrite) Close() error {
	rsw.Lock()
	defer rsw.Unlock()
	if rsw.file == nil {
		return nil
	}
	err := rsw.file.Close()
	rsw.file = nil
	return err
}

// Sync flushes the current log file if any.
func (rsw *RSyncWrite) Sync() error {
	rsw.Lock()
	defer rsw.Unlock()
	if rsw.file == nil {
		return nil
	}
	return rsw.file.Sync()
}

// Write implements the io.Writer interface with file rotation on max size.
func (rsw *RSyncWrite) Write(p []byte) (int, error) {
	rsw.Lock()
	defer rsw.Unlock()
	pLen := int64(len(p))
	if pLen > rsw.max {
		return 0, fmt.Errorf("logging: entry size %d exceeds max file size %d", pLen, rsw.max)
	}
	if rsw.file == nil || pLen+rsw.size > rsw.max {
		if rsw.file != nil {
			if err := rsw.file.Close(); err != nil {
				return 0, err
			}
		}
		path := CreateLogFilePath(rsw.folder, rsw.isProd, rsw.clock.Now())
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, err
		}
		rsw.file = file
		rsw.size = 0
	}
	n, err := rsw.file.Write(p)
	rsw.size += int64(n)
	return n, err
}

// SyncWrite wraps stdout so that Sync is a no-op. Calling Sync on
// os.Stdout fails on some platforms with `handle is invalid`.
type SyncWrite struct {
	out *os.File
}

func (sw *SyncWrite) Sync() error {
	return nil
}

func (sw *SyncWrite) Write(p []byte) (n int, err error) {
	return sw.out.Write(p)
}

func encoderConfig(isProd bool) zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	if isProd {
		cfg = zap.NewProductionEncoderConfig()
	}
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.LevelKey = "lvl"
	cfg.NameKey = "name"
	cfg.MessageKey = "msg"
	cfg.CallerKey = "caller"
	cfg.StacktraceKey = "skt"
	return cfg
}

// SetupLogging initializes the logging module. In production all logs are saved
// to the rotated files only. In development the same logs are printed to standard
// output as well. Stacktraces are attached to fatal level logs only.
func SetupLogging(config *Config, w zapcore.WriteSyncer, clock TickerClocker) (*zap.Logger, func() error) {
	encCfg := encoderConfig(config.IsProduction)
	cores := []zapcore.Core{zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, config.LogLevel)}
	if !config.IsProduction {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(&SyncWrite{os.Stdout}),
			config.LogLevel,
		))
	}
	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.FatalLevel), zap.WithClock(clock))
	logger = logger.With(
		zap.String("app.commit", config.GitCommit),
		zap.String("app.tag", config.GitTag),
		zap.String("app.built", config.BuildTime),
	)

	flusher := func() error {
		if err := logger.Sync(); err != nil {
			return fmt.Errorf("[flush logs]: %w", err)
		}
		return nil
	}

	return logger, flusher
}

// CreateLogFilePath returns the absolute path of a new log file.
func CreateLogFilePath(folder string, isProd bool, t time.Time) string {
	envKey := "dev"
	if isProd {
		envKey = "prod"
	}
	name := fmt.Sprintf("lending.%s.%s.log", t.Format("20060102.150405.000000"), envKey)
	return filepath.Join(folder, name)
}
