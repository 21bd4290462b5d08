package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/echocat/slf4g"
	"github.com/echocat/slf4g/native"
	"github.com/echocat/slf4g/native/consumer"
	"github.com/echocat/slf4g/native/facade/value"
	"github.com/echocat/slf4g/native/formatter"

	"voiceassist/internal/auth"
	"voiceassist/internal/config"
	"voiceassist/internal/console"
	"voiceassist/internal/redis"
	"voiceassist/internal/service/dashboard"
	"voiceassist/internal/storage"
)

func main() {
	wf := console.NewWriterFacade(os.Stderr)
	consumer.Default = consumer.NewWriter(wf)

	lv := value.NewProvider(native.DefaultProvider)
	lv.Consumer.Formatter.Codec = value.MappingFormatterCodec{
		"text": formatter.NewText(func(v *formatter.Text) {
			bv := true
			v.AllowMultiLineMessage = &bv
			v.MultiLineMessageAfterFields = &bv
		}),
		"json": formatter.NewJson(),
	}

	a := &app{logs: wf}
	cmd := kingpin.New("voiceassist", "Voice appointment assistant.")
	a.setup(cmd)

	cmd.Flag("log.level", "").
		SetValue(lv.Level)
	cmd.Flag("log.format", "").
		Default("text").
		SetValue(lv.Consumer.Formatter)
	cmd.Flag("log.color", "").
		Default("auto").
		SetValue(lv.Consumer.Formatter.ColorMode)

	kingpin.MustParse(cmd.Parse(os.Args[1:]))
}

// app carries the state shared by every sub command.
type app struct {
	logs *console.WriterFacade

	configPath string
	database   string
	redis      bool

	cfg *config.Config
}

func (a *app) setup(cmd *kingpin.Application) {
	cmd.Flag("config", "JSON configuration file.").
		Default(config.Path()).
		StringVar(&a.configPath)
	cmd.Flag("database", "Database to store conversations in: sqlite3, mysql or postgres.").
		Envar("VOICEASSIST_DB").
		StringVar(&a.database)
	cmd.Flag("redis", "Cache dashboard lists in redis.").
		BoolVar(&a.redis)
	cmd.PreAction(a.loadConfig)

	a.setupChat(cmd)
	a.setupServe(cmd)
	a.setupReports(cmd)

	cmd.Command("gen-token", "Print a random admin token.").
		Action(func(*kingpin.ParseContext) error {
			token, err := auth.GenerateToken()
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		})
}

func (a *app) loadConfig(*kingpin.ParseContext) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	overrides := config.Config{
		BasicConfig: config.BasicConfig{Database: a.database},
		Redis:       config.RedisConfig{Enabled: a.redis},
	}
	if err := cfg.Merge(overrides); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) openStore() (*storage.DB, error) {
	dbType := a.cfg.BasicConfig.Database
	log.With("database", dbType).Debug("Opening store...")
	db, err := storage.Open(dbType, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// openCache returns a nil cache when redis is disabled. A configured but
// unreachable redis is logged and skipped.
func (a *app) openCache() (dashboard.Cache, func()) {
	if !a.cfg.Redis.Enabled {
		return nil, func() {}
	}
	rdb, err := redis.NewRedisClient(a.cfg)
	if err != nil {
		log.WithError(err).Warn("Cannot reach redis. Continuing without cache.")
		return nil, func() {}
	}
	return rdb, func() { _ = rdb.Close() }
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
