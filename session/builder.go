package session

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Builder creates sessions and memoizes them by (conf, app name). Safe for
// concurrent use: at most one session is constructed per argument
// combination, even when the first calls race.
type Builder struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group

	mem    memory.Allocator
	logger *zap.Logger

	created  prometheus.Counter
	reused   prometheus.Counter
	failures prometheus.Counter
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger handed to every session.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithAllocator sets the memory allocator shared by every session.
func WithAllocator(mem memory.Allocator) Option {
	return func(b *Builder) {
		if mem != nil {
			b.mem = mem
		}
	}
}

// WithRegisterer registers the builder's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *Builder) { b.registerMetrics(reg) }
}

// NewBuilder returns a Builder with an empty cache.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		sessions: make(map[string]*Session),
		mem:      memory.DefaultAllocator,
		logger:   zap.NewNop(),
	}
	b.registerMetrics(nil)
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Builder) registerMetrics(reg prometheus.Registerer) {
	b.created = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "tabpipe",
		Name:      "sessions_created_total",
		Help:      "Total number of sessions constructed.",
	})
	b.reused = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "tabpipe",
		Name:      "sessions_reused_total",
		Help:      "Total number of session requests served from the cache.",
	})
	b.failures = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "tabpipe",
		Name:      "session_build_failures_total",
		Help:      "Total number of session constructions rejected by configuration.",
	})
}

// GetOrCreate returns the session for conf and appName, building it on first
// use. A nil conf means DefaultConf(); an empty appName means DefaultAppName.
// Construction errors are returned and not cached. conf must not be mutated
// while GetOrCreate runs.
func (b *Builder) GetOrCreate(conf *Conf, appName string) (*Session, error) {
	if conf == nil {
		conf = DefaultConf()
	}
	if appName == "" {
		appName = DefaultAppName
	}
	key := appName + "\x00" + conf.Key()
	if s, ok := b.cached(key); ok {
		b.reused.Inc()
		return s, nil
	}
	v, err, _ := b.group.Do(key, func() (interface{}, error) {
		// A call that finished between the lookup above and Do has stored
		// its session already.
		if s, ok := b.cached(key); ok {
			return s, nil
		}
		s, err := newSession(conf.Clone(), appName, b.mem, b.logger)
		if err != nil {
			b.failures.Inc()
			return nil, err
		}
		b.mu.Lock()
		b.sessions[key] = s
		b.mu.Unlock()
		b.created.Inc()
		b.logger.Info("session created",
			zap.String("session_id", s.ID()),
			zap.String("app", appName),
			zap.Int("shuffle_partitions", s.ShufflePartitions()),
			zap.Uint64("max_result_size", s.MaxResultSize()),
			zap.String("serializer", string(s.Serializer())),
			zap.Bool("arrow", s.ArrowEnabled()))
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (b *Builder) cached(key string) (*Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[key]
	return s, ok
}

// Len returns the number of cached sessions.
func (b *Builder) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

var defaultBuilder = NewBuilder()

// GetOrCreate returns a session from the process-wide builder.
func GetOrCreate(conf *Conf, appName string) (*Session, error) {
	return defaultBuilder.GetOrCreate(conf, appName)
}
