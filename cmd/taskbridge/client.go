package main

import (
	"github.com/loykin/taskbridge/internal/relay"
	"github.com/loykin/taskbridge/internal/signal"
)

// newRelayClient connects client commands to a running `taskbridge serve`.
func newRelayClient(emitter signal.Emitter) (*relay.Client, error) {
	doc, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	opts, err := doc.RelayClientOptions()
	if err != nil {
		return nil, err
	}
	opts.Emitter = emitter
	return relay.NewClient(opts)
}
