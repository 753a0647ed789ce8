// Package trigger implements the cross-process remote procedure
// trigger used by hardware module drivers.
//
// A trigger channel pairs two binary futexes in shared memory under a
// common server memory name: the client posts the request futex and
// then waits on the response futex; the server loop waits on the
// request futex, runs its callback, and posts the response when the
// callback has returned. Triggering carries no payload in either
// direction; any data exchange happens out of band through a separate
// shared-memory state block written before the trigger.
//
// The client/server relationship is 1:1 as a soft guarantee only. The
// server cannot tell whether several client processes posted the same
// request concurrently; deployments with multiple producers must
// serialise triggering externally.
package trigger

import (
	"pkt.systems/hwmcore/internal/futex"
	"pkt.systems/hwmcore/internal/shmem"
)

// Segment name suffixes derived from the server memory name. The scheme
// is stable so a client can locate a channel given only the name the
// server was created with.
const (
	requestSuffix  = ".req"
	responseSuffix = ".rsp"
)

// RequestSegmentName returns the shared-memory name of the request
// futex for serverMemoryName.
func RequestSegmentName(serverMemoryName string) string {
	return serverMemoryName + requestSuffix
}

// ResponseSegmentName returns the shared-memory name of the response
// futex for serverMemoryName.
func ResponseSegmentName(serverMemoryName string) string {
	return serverMemoryName + responseSuffix
}

func openChannelFutex(name string) (*shmem.Segment, *futex.Futex, error) {
	seg, err := shmem.Open(name, futex.SegmentType, futex.PayloadSize)
	if err != nil {
		return nil, nil, err
	}
	fx, err := futex.FromSegment(seg)
	if err != nil {
		seg.Close()
		return nil, nil, err
	}
	return seg, fx, nil
}
