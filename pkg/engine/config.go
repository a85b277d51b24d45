package engine

import (
	"time"

	"github.com/jabolina/lib3h-go/pkg/dht"
	"github.com/jabolina/lib3h-go/pkg/protocol"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

// Config collects the knobs an Engine is constructed with; immutable
// afterwards.
type Config struct {
	NetworkID           protocol.NetworkHash
	TransportConfigs    []string
	BootstrapURIs       []uri.Uri
	WorkDir             string
	LogLevel            byte
	BindURL             uri.Uri
	DhtGossipInterval   time.Duration
	DhtTimeoutThreshold time.Duration
	DhtCustomConfig     dht.Config
}

// DefaultConfig binds to the in-memory address mem://engine with the stock
// gossip and liveness intervals.
func DefaultConfig() Config {
	return Config{
		LogLevel:            'i',
		BindURL:             uri.Build(uri.SchemeMem, "engine", 0),
		DhtGossipInterval:   100 * time.Millisecond,
		DhtTimeoutThreshold: 1000 * time.Millisecond,
		DhtCustomConfig:     dht.DefaultConfig(),
	}
}
