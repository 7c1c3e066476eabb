// File: internal/discover/coordinator.go
//
// Backend selection and fallback ordering.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package discover

import (
	"github.com/eapache/queue"

	"github.com/momentics/hioload-affinity/api"
)

// backendQueue builds the probing order, best fidelity first. The flat
// backend terminates the chain because it cannot fail.
func backendQueue(ctx *Context) *queue.Queue {
	q := queue.New()
	if hw, ok := newHwlocBackend(); ok {
		q.Add(hw)
	}
	q.Add(x2apicBackend{})
	q.Add(apicBackend{})
	q.Add(cpuinfoBackend{})
	if ctx.NumProcGroups > 1 {
		q.Add(groupBackend{})
	}
	q.Add(flatBackend{})
	return q
}

// forcedBackend returns the single backend a non-default method names.
func forcedBackend(m Method) (Backend, bool) {
	switch m {
	case MethodHwloc:
		return newHwlocBackend()
	case MethodX2Apic, MethodX2Apic1F:
		return x2apicBackend{}, true
	case MethodApic:
		return apicBackend{}, true
	case MethodCpuinfo:
		return cpuinfoBackend{}, true
	case MethodGroup:
		return groupBackend{}, true
	case MethodFlat:
		return flatBackend{}, true
	}
	return nil, false
}

// Run discovers the machine topology. With MethodAll it walks the
// fallback chain, downgrading on any backend error; a forced method
// turns that backend's failure into a hard error.
func Run(ctx *Context) (*Result, error) {
	diag := ctx.diag()

	if ctx.Method != MethodAll {
		b, ok := forcedBackend(ctx.Method)
		if !ok {
			return nil, api.NewError(api.ErrCodeNotSupported,
				"requested topology method is not built in").
				WithContext("method", ctx.Method.String())
		}
		res, err := b.Discover(ctx)
		if err != nil {
			return nil, api.NewError(api.CodeOf(err),
				"forced topology method failed").
				WithContext("method", b.Name()).
				WithContext("cause", err.Error())
		}
		return res, nil
	}

	q := backendQueue(ctx)
	for q.Length() > 0 {
		b := q.Remove().(Backend)
		res, err := b.Discover(ctx)
		if err != nil {
			diag.Warnf("topology method %s failed: %v, trying next", b.Name(), err)
			continue
		}
		diag.Debugf("topology discovered via %s", b.Name())
		return res, nil
	}
	// Unreachable while flat terminates the queue.
	return nil, api.NewError(api.ErrCodeInternal, "all topology methods failed")
}
