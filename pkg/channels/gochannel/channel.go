// Package gochannel provides the in-memory event bus transport used for
// single-process deployments and tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// outputBuffer bounds the messages queued per subscriber before Publish blocks.
const outputBuffer = 1024

// NewChannel returns one GoChannel acting as both publisher and subscriber.
// Messages are not persisted: an event published before a handler subscribes
// is lost, so binaries subscribe before starting their sources.
func NewChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: outputBuffer},
		logger,
	)
}
