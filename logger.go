package conductor

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the sink every orchestrator subsystem writes to. The
// logging subsystem itself is an external collaborator (§1); the core
// only depends on this interface and on being able to derive a scoped
// child logger per component, so components never see log lines from
// their siblings mixed into their own without attribution.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	// Named returns a child logger that prefixes/tags every line with
	// name, used to hand each component a scoped sub-logger.
	Named(name string) Logger
}

// ZapLogger is the default Logger, backed by a zap.SugaredLogger.
// Configuration mirrors the teacher's example logger: JSON or console
// encoding, development or production timestamp/level encoders.
type ZapLogger struct {
	cfg ZapConfig
	sl  *zap.SugaredLogger
}

// ZapConfig configures ZapLogger construction.
type ZapConfig struct {
	Development   bool
	DisableCaller bool
	DisableJSON   bool
	Level         string
}

var zapLevelByName = map[string]zapcore.Level{
	"debug":  zapcore.DebugLevel,
	"info":   zapcore.InfoLevel,
	"warn":   zapcore.WarnLevel,
	"error":  zapcore.ErrorLevel,
	"dpanic": zapcore.DPanicLevel,
	"panic":  zapcore.PanicLevel,
	"fatal":  zapcore.FatalLevel,
}

// NewZapLogger builds a ZapLogger from cfg.
func NewZapLogger(cfg ZapConfig) *ZapLogger {
	level, ok := zapLevelByName[cfg.Level]
	if !ok {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}
	encoderCfg.TimeKey = "time"
	encoderCfg.LevelKey = "level"
	encoderCfg.MessageKey = "message"
	encoderCfg.CallerKey = "caller"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if cfg.DisableJSON {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zap.NewAtomicLevelAt(level))
	var callerOpts []zap.Option
	if !cfg.DisableCaller {
		callerOpts = append(callerOpts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	return &ZapLogger{cfg: cfg, sl: zap.New(core, callerOpts...).Sugar()}
}

func (l *ZapLogger) Debugf(format string, args ...interface{}) { l.sl.Debugf(format, args...) }
func (l *ZapLogger) Infof(format string, args ...interface{})  { l.sl.Infof(format, args...) }
func (l *ZapLogger) Warnf(format string, args ...interface{})  { l.sl.Warnf(format, args...) }
func (l *ZapLogger) Errorf(format string, args ...interface{}) { l.sl.Errorf(format, args...) }

// Named returns a scoped sub-logger, used as the component-facing logger
// handed out alongside a ComponentLifecycleRef.
func (l *ZapLogger) Named(name string) Logger {
	return &ZapLogger{cfg: l.cfg, sl: l.sl.Named(name)}
}

// noopLogger discards everything; it is the Manager's default when no
// Logger option is supplied, matching the teacher's pattern of a always
// non-nil logger dependency.
type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}
func (noopLogger) Named(string) Logger           { return noopLogger{} }
