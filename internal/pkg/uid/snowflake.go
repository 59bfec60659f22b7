package uid

import (
	"crypto/sha256"
	"os"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Snowflake generates time-ordered int64 identifiers.
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake creates a generator whose node number is derived from the
// machine identity, so multiple instances on different hosts stay disjoint
// without coordination.
func NewSnowflake() (*Snowflake, error) {
	node, err := snowflake.NewNode(nodeNumber())
	if err != nil {
		return nil, err
	}

	return &Snowflake{node: node}, nil
}

// Generate returns a new int64 identifier.
func (s *Snowflake) Generate() int64 {
	return s.node.Generate().Int64()
}

// nodeNumber hashes the machine identity into the 10-bit node space.
func nodeNumber() int64 {
	src := "localhost"
	if b, err := os.ReadFile("/etc/machine-id"); err == nil && strings.TrimSpace(string(b)) != "" {
		src = strings.TrimSpace(string(b))
	} else if h, err := os.Hostname(); err == nil && strings.TrimSpace(h) != "" {
		src = strings.TrimSpace(h)
	}

	sum := sha256.Sum256([]byte(src))

	return int64(uint16(sum[0])<<8|uint16(sum[1])) % 1024
}
