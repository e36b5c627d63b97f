package main

import (
	"context"
	"fmt"
	"time"

	"talentmatch/internal/ai"
	"talentmatch/internal/ai/gemini"
	"talentmatch/internal/assignment"
	"talentmatch/internal/common/config"
	"talentmatch/internal/common/crypto"
	"talentmatch/internal/common/database"
	"talentmatch/internal/common/logger"
	"talentmatch/internal/common/ratelimit"
	"talentmatch/internal/jira"
	"talentmatch/internal/jobs"
	"talentmatch/internal/notify"
	"talentmatch/internal/priority"
	"talentmatch/internal/risk"
	"talentmatch/internal/scoring"
	"talentmatch/internal/search"
	"talentmatch/internal/store"
	cvprocessing "talentmatch/internal/workers/matching/cv-processing"
	fitscorecalculation "talentmatch/internal/workers/matching/fit-score-calculation"
	skillmapgeneration "talentmatch/internal/workers/matching/skill-map-generation"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// app holds every long-lived dependency of one process.
type app struct {
	cfg    *config.Config
	zapLog *zap.Logger
	log    logger.Logger

	pg      *database.PostgresClient
	redis   *database.RedisClient
	es      *database.ElasticsearchClient
	limiter *ratelimit.Queue

	store  *store.Store
	queue  *jobs.Queue
	cipher *crypto.Cipher
	engine *scoring.Engine
	search *search.Index
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// newApp connects Postgres (required) plus Redis and Elasticsearch when
// configured, and builds the scoring engine on top.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	zapLog, err := logger.Build(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	a := &app{cfg: cfg, zapLog: zapLog, log: logger.NewZapAdapter(zapLog)}

	if a.pg, err = database.NewPostgres(cfg.Database.Postgres); err != nil {
		return nil, err
	}
	err = retryWithBackoff(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return a.pg.Ping(pingCtx)
	}, 5, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		a.pg.Close()
		return nil, err
	}
	zapLog.Info("connected to PostgreSQL")

	if cfg.Database.Redis.Address != "" {
		rdb, err := database.NewRedis(cfg.Database.Redis)
		if err == nil {
			err = retryWithBackoff(func() error { return rdb.Ping(ctx) }, 3, time.Second, zapLog, "Redis connection")
		}
		if err != nil {
			zapLog.Warn("redis unavailable, AI cache disabled", zap.Error(err))
		} else {
			a.redis = rdb
			zapLog.Info("connected to Redis")
		}
	}

	if cfg.Database.Elasticsearch.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
		if err == nil {
			err = es.Ping(ctx)
		}
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, candidate search disabled", zap.Error(err))
		} else {
			a.es = es
			a.search = search.NewIndex(es.Client, cfg.Database.Elasticsearch.Index, a.log)
			zapLog.Info("connected to Elasticsearch")
		}
	}

	key, err := crypto.LoadKey(cfg.Security.EncryptionKey, cfg.App.IsProduction(), a.log)
	if err != nil {
		a.close()
		return nil, err
	}
	if a.cipher, err = crypto.NewCipher(key); err != nil {
		a.close()
		return nil, err
	}

	a.store = store.New(a.pg.DB, a.log)
	a.queue = jobs.NewQueue(a.store, cfg.Jobs.MaxAttempts, a.log)
	a.engine = scoring.NewEngine(a.buildJudge(ctx), config.GetDuration(cfg.AI.Timeout), a.log)
	return a, nil
}

// buildJudge returns nil when no API key is configured, leaving every scoring
// call on the fallback rules.
func (a *app) buildJudge(ctx context.Context) ai.Judge {
	if a.cfg.AI.APIKey == "" {
		a.log.Warn("no AI api key configured, using fallback scoring only", nil)
		return nil
	}

	client, err := gemini.NewClient(ctx, a.cfg.AI.APIKey, a.cfg.AI.Model)
	if err != nil {
		a.log.Warn("gemini client unavailable, using fallback scoring only", map[string]interface{}{"error": err.Error()})
		return nil
	}

	a.limiter = ratelimit.New(config.GetDuration(a.cfg.AI.MinInterval), ratelimit.WithLogger(a.log))
	var judge ai.Judge = ai.NewRateLimitedJudge(gemini.NewJudge(client, a.log, 0), a.limiter, ai.RetryPolicy{
		MaxRetries: a.cfg.AI.MaxRetries,
		BaseDelay:  config.GetDuration(a.cfg.AI.BaseDelay),
	})
	if a.redis != nil {
		judge = ai.NewCachedJudge(judge, a.redis.Client, config.GetDuration(a.cfg.AI.CacheTTL), a.log)
	}
	return judge
}

func (a *app) notifier(ctx context.Context) jobs.Notifier {
	sesCfg := a.cfg.Integrations.AWS.SES
	if !sesCfg.Enabled {
		return nil
	}
	awsCfg, err := notify.LoadAWSConfig(ctx, a.cfg.Integrations.AWS.Region)
	if err != nil {
		a.log.Warn("aws config unavailable, completion emails disabled", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return notify.NewEmailNotifier(sesClient(awsCfg), sesCfg.FromEmail, a.log)
}

func (a *app) riskPublisher(ctx context.Context) risk.Publisher {
	topic := a.cfg.Integrations.AWS.SNS
	if !topic.Enabled || topic.RiskTopicARN == "" {
		return nil
	}
	awsCfg, err := notify.LoadAWSConfig(ctx, a.cfg.Integrations.AWS.Region)
	if err != nil {
		a.log.Warn("aws config unavailable, risk alerts will not be published", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return notify.NewAlertPublisher(snsClient(awsCfg), topic.RiskTopicARN, a.log)
}

func (a *app) assignments() *assignment.Service {
	return assignment.NewService(a.pg.DB, a.log)
}

func (a *app) resolver() *priority.Resolver {
	return priority.NewResolver(a.store, a.log)
}

func (a *app) monitor(ctx context.Context) *risk.Monitor {
	return risk.NewMonitor(a.store, a.engine, a.riskPublisher(ctx), a.assignments(), a.log)
}

func (a *app) syncer() *jira.Syncer {
	return jira.NewSyncer(a.store, jira.NewClient(a.cfg.Jira), a.queue, a.cipher, a.log)
}

// registry binds a handler to every enabled job type.
func (a *app) registry() *jobs.Registry {
	reg := jobs.NewRegistry()

	if t := string(cvprocessing.JobType); config.IsWorkerEnabled(a.cfg, t) {
		cfg := cvprocessing.LoadConfig()
		applyTimeout(&cfg.Timeout, config.GetWorkerConfig(a.cfg, t))
		var indexer cvprocessing.Indexer
		if a.search != nil {
			indexer = a.search
		}
		reg.Register(cvprocessing.JobType, cvprocessing.NewHandler(cfg, a.store, a.engine, indexer, a.resolver(), a.log))
	}

	if t := string(fitscorecalculation.JobType); config.IsWorkerEnabled(a.cfg, t) {
		cfg := fitscorecalculation.LoadConfig()
		applyTimeout(&cfg.Timeout, config.GetWorkerConfig(a.cfg, t))
		reg.Register(fitscorecalculation.JobType, fitscorecalculation.NewHandler(cfg, a.store, a.engine, a.resolver(), a.log))
	}

	if t := string(skillmapgeneration.JobType); config.IsWorkerEnabled(a.cfg, t) {
		cfg := skillmapgeneration.LoadConfig()
		applyTimeout(&cfg.Timeout, config.GetWorkerConfig(a.cfg, t))
		reg.Register(skillmapgeneration.JobType, skillmapgeneration.NewHandler(cfg, a.store, a.engine, a.log))
	}

	return reg
}

func applyTimeout(d *time.Duration, wcfg config.WorkerConfig) {
	if wcfg.Timeout > 0 {
		*d = config.GetDuration(wcfg.Timeout)
	}
}

func (a *app) pingers() map[string]Pinger {
	deps := map[string]Pinger{"postgres": a.pg}
	if a.redis != nil {
		deps["redis"] = a.redis
	}
	return deps
}

func (a *app) close() {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
	_ = a.zapLog.Sync()
}

func sesClient(cfg aws.Config) *ses.Client { return ses.NewFromConfig(cfg) }

func snsClient(cfg aws.Config) *sns.Client { return sns.NewFromConfig(cfg) }
