package nfprobe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// TargetNFQueue is the xtables target Firegex needs from the kernel.
const TargetNFQueue = "NFQUEUE"

// replyBufferSize bounds the single read made per revision.
const replyBufferSize = 1024

// ErrUnavailable wraps the cause of an Indeterminate result when the
// netlink socket could not be opened at all.
var ErrUnavailable = errors.New("nfprobe: netlink unavailable")

// DefaultRevisions are tried newest first.
var DefaultRevisions = []uint32{3, 2, 1, 0}

// Reason explains a probe result.
type Reason int

const (
	// ModuleLoaded means the kernel answered the query without error.
	ModuleLoaded Reason = iota
	// PermissionDenied means the kernel refused an unprivileged caller,
	// which it only does once the target is known to exist.
	PermissionDenied
	// NotFound means no revision of the target exists.
	NotFound
	// Indeterminate means the probe could not reach a conclusion.
	Indeterminate
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ModuleLoaded:
		return "module_loaded"
	case PermissionDenied:
		return "permission_denied"
	case NotFound:
		return "not_found"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// Result is the outcome of a probe.
type Result struct {
	Supported bool
	Reason    Reason
	// Revision is the revision that answered. Meaningful for ModuleLoaded
	// and PermissionDenied only.
	Revision uint32
	// Err is the cause of an Indeterminate result.
	Err error
}

func indeterminate(err error) Result {
	return Result{Supported: true, Reason: Indeterminate, Err: err}
}

// Conn is a datagram channel to the netfilter netlink family.
type Conn interface {
	Send(b []byte) error
	Receive(b []byte) (int, error)
	Close() error
}

// Dialer opens a Conn.
type Dialer func() (Conn, error)

// Prober checks for xtables extensions through nfnetlink.
type Prober struct {
	dial   Dialer
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithDialer replaces the netlink socket, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(p *Prober) {
		p.dial = d
	}
}

// WithClock sets the time source used for sequence numbers.
func WithClock(now func() time.Time) Option {
	return func(p *Prober) {
		p.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = l
	}
}

// New creates a Prober that talks to the kernel.
func New(opts ...Option) *Prober {
	p := &Prober{
		dial:   DialNetfilter,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe reports whether the kernel knows the named xtables target.
//
// Revisions are tried newest first. EPERM counts as present because the
// kernel only checks credentials after resolving the extension; ENOENT
// moves on to the next revision; any other failure stops the probe with
// an Indeterminate result, which callers treat as supported.
func (p *Prober) Probe(ctx context.Context, target string) Result {
	conn, err := p.dial()
	if err != nil {
		p.logger.Debug("nfprobe: netlink unavailable", "error", err)
		return indeterminate(fmt.Errorf("%w: %w", ErrUnavailable, err))
	}
	defer conn.Close()

	buf := make([]byte, replyBufferSize)
	for _, rev := range DefaultRevisions {
		if err := ctx.Err(); err != nil {
			return indeterminate(err)
		}

		req := CompatRequest{
			Name:     target,
			Revision: rev,
			Target:   true,
			Seq:      uint32(p.now().Unix()),
		}
		msg, err := req.MarshalBinary()
		if err != nil {
			return indeterminate(err)
		}
		if err := conn.Send(msg); err != nil {
			return indeterminate(fmt.Errorf("nfprobe: send revision %d: %w", rev, err))
		}

		n, err := conn.Receive(buf)
		if err != nil {
			return indeterminate(fmt.Errorf("nfprobe: receive revision %d: %w", rev, err))
		}
		reply, err := ParseReply(buf[:n])
		if err != nil {
			return indeterminate(err)
		}

		if !reply.IsError() || reply.Code == 0 {
			p.logger.Debug("nfprobe: target found", "target", target, "revision", rev)
			return Result{Supported: true, Reason: ModuleLoaded, Revision: rev}
		}

		switch reply.Errno() {
		case errnoEPERM:
			p.logger.Debug("nfprobe: target found, caller not privileged", "target", target, "revision", rev)
			return Result{Supported: true, Reason: PermissionDenied, Revision: rev}
		case errnoENOENT:
			p.logger.Debug("nfprobe: revision not available", "target", target, "revision", rev)
			continue
		default:
			return indeterminate(fmt.Errorf("nfprobe: revision %d: kernel returned errno %d", rev, reply.Errno()))
		}
	}

	return Result{Supported: false, Reason: NotFound}
}

// Probe runs a default Prober.
func Probe(ctx context.Context, target string) Result {
	return New().Probe(ctx, target)
}
