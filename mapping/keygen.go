package mapping

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/getkayan/kidentity/identity"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// KeyStrategy selects how primary keys are generated.
type KeyStrategy int

const (
	// KeyGuidComb generates time-ordered UUIDv7 values for uuid.UUID keys.
	KeyGuidComb KeyStrategy = iota + 1
	// KeyHexComb generates time-ordered UUIDv7 values formatted as
	// 36-character hyphenated hex for string keys.
	KeyHexComb
	// KeyKSUID generates K-sortable ids for string keys.
	KeyKSUID
	// KeySnowflake generates snowflake ids for string keys.
	KeySnowflake
)

var (
	ErrUnknownStrategy  = errors.New("mapping: unknown key strategy")
	ErrStrategyMismatch = errors.New("mapping: key strategy does not match key type")
)

var strategyNames = map[KeyStrategy]string{
	KeyGuidComb:  "guidcomb",
	KeyHexComb:   "hexcomb",
	KeyKSUID:     "ksuid",
	KeySnowflake: "snowflake",
}

func (s KeyStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("KeyStrategy(%d)", int(s))
}

// ParseKeyStrategy maps a configuration value to a KeyStrategy.
func ParseKeyStrategy(name string) (KeyStrategy, error) {
	for s, n := range strategyNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// KeyGenerator produces new primary keys.
type KeyGenerator[K identity.Key] func() (K, error)

// GeneratorOptions tunes generators that need external input.
type GeneratorOptions struct {
	// SnowflakeNode is the node id used by KeySnowflake (0-1023).
	SnowflakeNode int64
}

// NewKeyGenerator returns the generator for strategy. The strategy must
// produce keys of type K.
func NewKeyGenerator[K identity.Key](strategy KeyStrategy, opts GeneratorOptions) (KeyGenerator[K], error) {
	var zero K
	_, uuidKey := any(zero).(uuid.UUID)

	switch strategy {
	case KeyGuidComb:
		if !uuidKey {
			return nil, fmt.Errorf("%w: %s requires uuid.UUID keys", ErrStrategyMismatch, strategy)
		}
		return func() (K, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return zero, err
			}
			return any(id).(K), nil
		}, nil

	case KeyHexComb:
		if uuidKey {
			return nil, fmt.Errorf("%w: %s requires string keys", ErrStrategyMismatch, strategy)
		}
		return func() (K, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return zero, err
			}
			return any(id.String()).(K), nil
		}, nil

	case KeyKSUID:
		if uuidKey {
			return nil, fmt.Errorf("%w: %s requires string keys", ErrStrategyMismatch, strategy)
		}
		return func() (K, error) {
			id, err := ksuid.NewRandom()
			if err != nil {
				return zero, err
			}
			return any(id.String()).(K), nil
		}, nil

	case KeySnowflake:
		if uuidKey {
			return nil, fmt.Errorf("%w: %s requires string keys", ErrStrategyMismatch, strategy)
		}
		node, err := snowflakeNode(opts.SnowflakeNode)
		if err != nil {
			return nil, err
		}
		return func() (K, error) {
			return any(node.Generate().String()).(K), nil
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
}

var (
	nodesMu sync.Mutex
	nodes   = make(map[int64]*snowflake.Node)
)

// snowflakeNode shares one node per id so ids from the same process never
// repeat.
func snowflakeNode(id int64) (*snowflake.Node, error) {
	nodesMu.Lock()
	defer nodesMu.Unlock()
	if n, ok := nodes[id]; ok {
		return n, nil
	}
	n, err := snowflake.NewNode(id)
	if err != nil {
		return nil, fmt.Errorf("mapping: snowflake node %d: %w", id, err)
	}
	nodes[id] = n
	return n, nil
}
