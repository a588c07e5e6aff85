package session

import (
	"sort"
	"strconv"
	"strings"
)

// Tuning keys understood by the session.
const (
	KeyShufflePartitions = "sql.shuffle.partitions"
	KeyMaxResultSize     = "driver.maxResultSize"
	KeySerializer        = "serializer"
	KeyArrowEnabled      = "sql.execution.arrow.enabled"
	KeyArrowFallback     = "sql.execution.arrow.fallback.enabled"
	// KeyBatchRows sets the rows per record batch for file reads and writes.
	// Optional; not part of DefaultConf.
	KeyBatchRows = "sql.files.batchRows"
)

const (
	DefaultShufflePartitions = "24"
	// DefaultMaxResultSize of "0" means unlimited.
	DefaultMaxResultSize = "0"
	DefaultSerializer    = string(SerializerLZ4)
	DefaultAppName       = "tabpipe_app"
	defaultBatchRows     = 4096
)

// Conf is an ordered set of tuning key/value pairs. A Conf is not safe for
// concurrent mutation; the Builder clones it before use.
type Conf struct {
	keys   []string
	values map[string]string
}

// NewConf returns an empty Conf.
func NewConf() *Conf {
	return &Conf{values: make(map[string]string)}
}

// DefaultConf returns the standard tuning set.
func DefaultConf() *Conf {
	return DefaultConfWithPartitions(DefaultShufflePartitions)
}

// DefaultConfWithPartitions returns the standard tuning set with the given
// shuffle partition count. The value is validated when a session is built.
func DefaultConfWithPartitions(shufflePartitions string) *Conf {
	return NewConf().
		Set(KeyMaxResultSize, DefaultMaxResultSize).
		Set(KeyShufflePartitions, shufflePartitions).
		Set(KeySerializer, DefaultSerializer).
		Set(KeyArrowEnabled, "true").
		Set(KeyArrowFallback, "true")
}

// Set assigns value to key and returns c for chaining. Re-setting a key keeps
// its original position.
func (c *Conf) Set(key, value string) *Conf {
	if c.values == nil {
		c.values = make(map[string]string)
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
	return c
}

// SetAll copies every pair of m into c in sorted key order.
func (c *Conf) SetAll(m map[string]string) *Conf {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Set(k, m[k])
	}
	return c
}

// Get returns the value for key.
func (c *Conf) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (c *Conf) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Len returns the number of keys.
func (c *Conf) Len() int { return len(c.keys) }

// Clone returns an independent copy of c.
func (c *Conf) Clone() *Conf {
	out := &Conf{keys: c.Keys(), values: make(map[string]string, len(c.values))}
	for k, v := range c.values {
		out.values[k] = v
	}
	return out
}

// Key returns a canonical encoding of the pairs, independent of insertion
// order. Two Confs with equal Keys configure identical sessions.
func (c *Conf) Key() string {
	keys := c.Keys()
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(strconv.Quote(k))
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(c.values[k]))
		sb.WriteByte(';')
	}
	return sb.String()
}
