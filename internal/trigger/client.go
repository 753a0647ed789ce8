package trigger

import (
	"context"
	"time"

	"pkt.systems/hwmcore/internal/futex"
	"pkt.systems/hwmcore/internal/rterror"
	"pkt.systems/hwmcore/internal/shmem"
	"pkt.systems/hwmcore/internal/svcfields"
	"pkt.systems/pslog"
)

// cancelPollInterval bounds how long a Trigger call waits in the kernel
// before re-checking context cancellation.
const cancelPollInterval = 50 * time.Millisecond

// ClientOptions configures a Client.
type ClientOptions struct {
	Logger pslog.Logger
}

// Client is the triggering side of a channel. It attaches to the futex
// segments of an existing server; the server process must have created
// the channel first. A client holds non-owning views whose lifetime is
// bounded by the server's shared-memory manager.
//
// A Client serialises nothing: one trigger at a time per client. With
// several client processes on one channel the server cannot attribute
// responses; keep the relationship 1:1.
type Client struct {
	name   string
	logger pslog.Logger

	requestSeg  *shmem.Segment
	responseSeg *shmem.Segment
	request     *futex.Futex
	response    *futex.Futex
}

// NewClient attaches to the channel of the server named
// serverMemoryName. Fails when the channel segments do not exist or are
// of the wrong size or type.
func NewClient(serverMemoryName string, opts ClientOptions) (*Client, error) {
	if serverMemoryName == "" {
		return nil, rterror.InvalidArgument("trigger: server memory name must not be empty")
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}

	requestSeg, request, err := openChannelFutex(RequestSegmentName(serverMemoryName))
	if err != nil {
		return nil, err
	}
	responseSeg, response, err := openChannelFutex(ResponseSegmentName(serverMemoryName))
	if err != nil {
		requestSeg.Close()
		return nil, err
	}
	return &Client{
		name:        serverMemoryName,
		logger:      svcfields.WithSubsystem(logger, "hwmcore.trigger.client").With("server_memory_name", serverMemoryName),
		requestSeg:  requestSeg,
		responseSeg: responseSeg,
		request:     request,
		response:    response,
	}, nil
}

// Trigger performs one round trip: it posts the request futex and
// blocks until the server has run its callback and posted the response.
// The wait unblocks only after the callback has returned. Cancelling
// ctx abandons the wait; the response, when it eventually arrives,
// stays posted and is consumed by the next Trigger call.
func (c *Client) Trigger(ctx context.Context) error {
	if err := c.request.Post(); err != nil {
		return err
	}
	for {
		ok, err := c.response.WaitFor(cancelPollInterval)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return rterror.Unavailable("trigger: wait for response abandoned: " + err.Error())
		}
	}
}

// Close detaches the client's segment views.
func (c *Client) Close() error {
	err := c.requestSeg.Close()
	if rspErr := c.responseSeg.Close(); rspErr != nil && err == nil {
		err = rspErr
	}
	return err
}
