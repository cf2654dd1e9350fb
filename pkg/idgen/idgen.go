package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

// Generator mints ids for messages and group conversations
type Generator interface {
	NextID() (string, error)
}

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Sonyflake mints time-ordered decimal ids, unique per machine id
type Sonyflake struct {
	sf *sonyflake.Sonyflake
}

func NewSonyflake(machineId uint16) (*Sonyflake, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: epoch,
		MachineID: func() (uint16, error) { return machineId, nil },
	})
	if err != nil {
		return nil, fmt.Errorf("sonyflake machine %d: %w", machineId, err)
	}
	return &Sonyflake{sf: sf}, nil
}

func (g *Sonyflake) NextID() (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(id, 10), nil
}

// UUID mints random v4 ids
type UUID struct{}

func (UUID) NextID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var (
	mu  sync.Mutex
	def Generator
)

// SetDefault replaces the process-wide generator used by NextID
func SetDefault(g Generator) {
	mu.Lock()
	def = g
	mu.Unlock()
}

// NextID uses the default generator, a machine-1 Sonyflake until SetDefault is called
func NextID() (string, error) {
	mu.Lock()
	if def == nil {
		sf, err := NewSonyflake(1)
		if err != nil {
			mu.Unlock()
			return "", err
		}
		def = sf
	}
	g := def
	mu.Unlock()
	return g.NextID()
}
