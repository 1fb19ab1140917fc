package toolloop

import (
	"time"
)

// LoopConfig bounds a single run.
type LoopConfig struct {
	// MaxTurns counts model calls. Corrective turns are granted on top of it.
	MaxTurns         int
	ModelCallTimeout time.Duration
	RunTimeout       time.Duration
	// CorrectiveTurns is how often a rejected final answer is sent back to the model.
	CorrectiveTurns int
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxTurns:         10,
		ModelCallTimeout: 60 * time.Second,
		RunTimeout:       5 * time.Minute,
		CorrectiveTurns:  0,
	}
}

func (c LoopConfig) WithMaxTurns(maxTurns int) LoopConfig {
	c.MaxTurns = maxTurns
	return c
}

func (c LoopConfig) WithModelCallTimeout(timeout time.Duration) LoopConfig {
	c.ModelCallTimeout = timeout
	return c
}

func (c LoopConfig) WithRunTimeout(timeout time.Duration) LoopConfig {
	c.RunTimeout = timeout
	return c
}

func (c LoopConfig) WithCorrectiveTurns(n int) LoopConfig {
	c.CorrectiveTurns = n
	return c
}
