// Package shared builds the dependencies common to the API server and the admin CLI.
package shared

import (
	"context"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/course"
	"github.com/trezcool/chuo/core/enrollment"
	"github.com/trezcool/chuo/core/feed"
	"github.com/trezcool/chuo/core/user"
	blobsvc "github.com/trezcool/chuo/services/blob"
	cachesvc "github.com/trezcool/chuo/services/cache"
	emailsvc "github.com/trezcool/chuo/services/email"
	eventsvc "github.com/trezcool/chuo/services/events"
	logsvc "github.com/trezcool/chuo/services/logger"
	"github.com/trezcool/chuo/storage/database"
	"github.com/trezcool/chuo/storage/database/memdb"
	"github.com/trezcool/chuo/storage/database/pgdb"
	"github.com/trezcool/chuo/storage/docrepos"
)

const (
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

// NewValidator returns a validator knowing every validation of the app, with english messages.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	return validate, translator
}

// NewLogger returns a Rollbar logger writing its lines to stdout, tagged with component.
func NewLogger(conf *core.Config, component string) *logsvc.RollbarLogger {
	zl := logsvc.NewZerolog(os.Stdout, conf).With().Str("component", component).Logger()
	return logsvc.NewRollbarLogger(zl, conf)
}

// OpenStore opens the document store of the configured engine.
// The PostgreSQL database is created (given admin credentials) and migrated first.
func OpenStore(ctx context.Context, conf *core.Config, logger core.Logger) (core.DocStore, error) {
	switch conf.Database.Engine {
	case EngineMemory:
		return memdb.Open(logger), nil
	case EnginePostgres, "":
		if conf.Database.AdminUser != "" {
			if err := database.CreateIfNotExist(ctx, conf); err != nil {
				return nil, errors.Wrap(err, "creating database")
			}
		}
		store, err := pgdb.Open(ctx, conf, logger)
		if err != nil {
			return nil, errors.Wrap(err, "opening database")
		}
		if err = database.Migrate(store.DB(), "up"); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}
}

type (
	// Backends are the collaborators of the services. Missing ones are replaced by local fallbacks.
	Backends struct {
		Mail     core.EmailService
		Events   core.EventPublisher
		Blobs    core.BlobStore
		Denylist user.TokenDenylist
		Redis    *redis.Client // nil when Redis is not configured
	}

	Services struct {
		Users       user.Service
		Courses     course.Service
		Enrollments enrollment.Service
		Feeds       feed.Service
	}
)

// ConnectBackends connects to the configured external services: Redis, the message broker and MinIO.
// The returned func releases them.
func ConnectBackends(ctx context.Context, conf *core.Config, logger core.Logger) (*Backends, func(), error) {
	b := &Backends{Mail: emailsvc.New(conf, logger)}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if conf.Redis.Address != "" {
		rdb, err := cachesvc.NewRedisClient(ctx, conf)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		b.Redis = rdb
		b.Denylist = cachesvc.NewRedisDenylist(rdb)
	} else {
		b.Denylist = cachesvc.NewMemoryDenylist()
	}

	if conf.AMQP.URL != "" {
		pub, err := eventsvc.NewAMQPPublisher(conf, logger)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, func() { _ = pub.Close() })
		b.Events = pub
	} else {
		b.Events = eventsvc.NewLogPublisher(logger)
	}

	if conf.Minio.Endpoint != "" {
		blobs, err := blobsvc.NewMinioStore(conf, logger)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		b.Blobs = blobs
	} else {
		b.Blobs = blobsvc.NewMemoryStore(conf.Minio.Bucket, conf.FrontendBaseURL+"/media")
	}

	return b, cleanup, nil
}

// NewServices builds the domain services on top of store.
func NewServices(conf *core.Config, store core.DocStore, b *Backends, logger core.Logger) *Services {
	usrSvc := user.NewService(conf, docrepos.NewUserRepository(store), b.Denylist, b.Mail, logger)
	return newServices(conf, store, b, usrSvc, logger)
}

// NewServicesMock is NewServices with the emails sent synchronously.
func NewServicesMock(conf *core.Config, store core.DocStore, b *Backends, logger core.Logger) *Services {
	usrSvc := user.NewServiceMock(conf, docrepos.NewUserRepository(store), b.Denylist, b.Mail, logger)
	return newServices(conf, store, b, usrSvc, logger)
}

func newServices(conf *core.Config, store core.DocStore, b *Backends, usrSvc user.Service, logger core.Logger) *Services {
	crsSvc := course.NewService(docrepos.NewCourseRepository(store), b.Blobs, b.Events, logger)
	return &Services{
		Users:   usrSvc,
		Courses: crsSvc,
		Enrollments: enrollment.NewService(
			conf,
			docrepos.NewEnrollmentRepository(store),
			crsSvc,
			usrSvc,
			b.Events,
			b.Mail,
			logger,
		),
		Feeds: feed.NewService(docrepos.NewFeedRepository(store, logger), logger),
	}
}
