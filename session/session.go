package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidConf is returned when a tuning value cannot be applied.
	ErrInvalidConf = errors.New("invalid session configuration")
	// ErrSchemaMismatch is returned when file contents do not match the
	// requested schema.
	ErrSchemaMismatch = errors.New("data does not match schema")
	// ErrResultTooLarge is returned when a read exceeds driver.maxResultSize.
	ErrResultTooLarge = errors.New("result exceeds " + KeyMaxResultSize)
	// ErrArrowDisabled is returned for Arrow IPC access when arrow interop and
	// its fallback are both disabled.
	ErrArrowDisabled = errors.New("arrow interop disabled")
)

// Serializer selects the compression of Arrow IPC files.
type Serializer string

const (
	SerializerNone Serializer = "none"
	SerializerLZ4  Serializer = "lz4"
	SerializerZstd Serializer = "zstd"
)

// Session is a configured handle to the table engine. Sessions are created
// by a Builder and live for the rest of the process.
type Session struct {
	id      string
	appName string
	conf    *Conf

	shufflePartitions int
	maxResultSize     uint64
	serializer        Serializer
	arrowEnabled      bool
	arrowFallback     bool
	batchRows         int

	mem    memory.Allocator
	logger *zap.Logger
}

func newSession(conf *Conf, appName string, mem memory.Allocator, logger *zap.Logger) (*Session, error) {
	s := &Session{
		id:        uuid.New().String(),
		appName:   appName,
		conf:      conf,
		batchRows: defaultBatchRows,
		mem:       mem,
	}
	var err error
	if s.shufflePartitions, err = positiveInt(conf, KeyShufflePartitions, DefaultShufflePartitions); err != nil {
		return nil, err
	}
	if s.batchRows, err = positiveInt(conf, KeyBatchRows, strconv.Itoa(defaultBatchRows)); err != nil {
		return nil, err
	}
	size := lookup(conf, KeyMaxResultSize, DefaultMaxResultSize)
	if s.maxResultSize, err = ParseSize(size); err != nil {
		return nil, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConf, KeyMaxResultSize, size, err)
	}
	switch ser := Serializer(strings.ToLower(lookup(conf, KeySerializer, DefaultSerializer))); ser {
	case SerializerNone, SerializerLZ4, SerializerZstd:
		s.serializer = ser
	default:
		return nil, fmt.Errorf("%w: %s=%q: want none, lz4 or zstd", ErrInvalidConf, KeySerializer, ser)
	}
	if s.arrowEnabled, err = boolean(conf, KeyArrowEnabled); err != nil {
		return nil, err
	}
	if s.arrowFallback, err = boolean(conf, KeyArrowFallback); err != nil {
		return nil, err
	}
	s.logger = logger.With(zap.String("session_id", s.id), zap.String("app", appName))
	return s, nil
}

func lookup(conf *Conf, key, def string) string {
	if v, ok := conf.Get(key); ok {
		return v
	}
	return def
}

func positiveInt(conf *Conf, key, def string) (int, error) {
	v := lookup(conf, key, def)
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s=%q: want a positive integer", ErrInvalidConf, key, v)
	}
	return n, nil
}

func boolean(conf *Conf, key string) (bool, error) {
	v := lookup(conf, key, "true")
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q: want true or false", ErrInvalidConf, key, v)
	}
	return b, nil
}

// ParseSize parses a byte size. Bare unit suffixes follow the JVM convention
// and are binary ("512m" is 512 MiB, "1g" is 1 GiB); explicit suffixes such
// as "1GB" or "1GiB" keep their usual meaning. "0" means unlimited.
func ParseSize(s string) (uint64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, errors.New("empty size")
	}
	switch s[len(s)-1] {
	case 'k', 'm', 'g', 't', 'p':
		s += "ib"
	}
	return humanize.ParseBytes(s)
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// AppName returns the application name the session was built for.
func (s *Session) AppName() string { return s.appName }

// Conf returns a copy of the session's tuning set.
func (s *Session) Conf() *Conf { return s.conf.Clone() }

// ShufflePartitions bounds the number of files processed concurrently.
func (s *Session) ShufflePartitions() int { return s.shufflePartitions }

// MaxResultSize is the largest table, in bytes, a read may return. Zero means
// unlimited.
func (s *Session) MaxResultSize() uint64 { return s.maxResultSize }

// Serializer returns the Arrow IPC compression.
func (s *Session) Serializer() Serializer { return s.serializer }

// ArrowEnabled reports whether Arrow IPC files may be read and written.
func (s *Session) ArrowEnabled() bool { return s.arrowEnabled }

// ArrowFallback reports whether IPC access falls back to CSV when arrow
// interop is disabled.
func (s *Session) ArrowFallback() bool { return s.arrowFallback }

// BatchRows returns the rows per record batch.
func (s *Session) BatchRows() int { return s.batchRows }

// Allocator returns the memory allocator used for all tables of the session.
func (s *Session) Allocator() memory.Allocator { return s.mem }
