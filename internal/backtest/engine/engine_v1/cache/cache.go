package cache

import (
	"github.com/moznion/go-optional"
)

// Cache is the per-run scratch space handed to an algorithm. A new cache is
// created for every run so nothing leaks between runs.
type Cache interface {
	Reset()
	Set(key string, value any)
	Get(key string) (any, bool)
}

// CrossoverState remembers which side of the slow average the fast average was on.
type CrossoverState struct {
	FastAboveSlow bool    `json:"fast_above_slow"`
	LastFast      float64 `json:"last_fast"`
	LastSlow      float64 `json:"last_slow"`
	Symbol        string  `json:"symbol"`
}

// ReversionState tracks the band an open mean-reversion trade was entered on.
type ReversionState struct {
	EnteredBelow bool    `json:"entered_below"`
	EntryZScore  float64 `json:"entry_z_score"`
	Symbol       string  `json:"symbol"`
}

type CacheV1 struct {
	CrossoverState optional.Option[CrossoverState]
	ReversionState optional.Option[ReversionState]
	otherData      map[string]any
}

func NewCacheV1() Cache {
	return &CacheV1{
		CrossoverState: optional.None[CrossoverState](),
		ReversionState: optional.None[ReversionState](),
		otherData:      make(map[string]any),
	}
}

// Reset implements cache.Cache.
func (c *CacheV1) Reset() {
	c.CrossoverState = optional.None[CrossoverState]()
	c.ReversionState = optional.None[ReversionState]()
	c.otherData = make(map[string]any)
}

// Set stores free-form algorithm data by key. Built-in algorithm state has typed fields on CacheV1.
func (c *CacheV1) Set(key string, value any) {
	c.otherData[key] = value
}

// Get returns the value stored under key.
func (c *CacheV1) Get(key string) (any, bool) {
	value, ok := c.otherData[key]

	return value, ok
}
