package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/fiffu/feedwatch/app"
	"github.com/fiffu/feedwatch/bot"
	"github.com/fiffu/feedwatch/config"
	"github.com/fiffu/feedwatch/lib"
	"github.com/fiffu/feedwatch/lib/delivery"
	"github.com/fiffu/feedwatch/lib/poller"
	"github.com/fiffu/feedwatch/senders"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func NewLogger(lc fx.Lifecycle) (*zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)
	switch os.Getenv("ENVIRONMENT") {
	default:
		log, err = zap.NewDevelopment()

	case "production":
		prodCfg := zap.NewProductionConfig()
		prodCfg.EncoderConfig.EncodeTime = utcTimeEncoder
		log, err = prodCfg.Build()
	}
	if err != nil {
		return nil, err
	}

	logCfg, err := config.ParseLog()
	if err != nil {
		return nil, err
	}
	// LOG_FILE tees JSON logs into a rotated file.
	if logCfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   logCfg.File,
			MaxSize:    logCfg.MaxSizeMB,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = utcTimeEncoder
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), zapcore.DebugLevel)
		log = log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				log.Sync()
				return file.Close()
			},
		})
	}
	return log, nil
}

func utcTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	zapcore.ISO8601TimeEncoder(t.UTC(), enc)
}

func main() {
	fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),

		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(app.NewTransport),
		fx.Provide(app.NewDiscordSession),
		fx.Provide(senders.NewSenderRegistry),

		fx.Provide(app.NewPersister),
		fx.Provide(app.NewStore),
		fx.Provide(app.NewFetcher),
		fx.Provide(delivery.NewPipeline),
		fx.Provide(poller.NewReadiness),
		fx.Provide(poller.NewPoller),
		fx.Provide(lib.NewService),
		fx.Provide(bot.NewBot),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(*bot.Bot, *http.Server) {}),
	).Run()
}
