package classify

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
)

// KindOf maps an error raised while driving the page to an ExceptionKind.
// Connection loss to the browser itself is not mapped here; callers check
// driver.ErrDisconnected first.
func KindOf(err error) ExceptionKind {
	if err == nil {
		return ExceptionNone
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ExceptionTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ExceptionTimeout
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ExceptionNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ExceptionTimeout
	case strings.Contains(msg, "net::"), strings.Contains(msg, "connection"), strings.Contains(msg, "network"):
		return ExceptionNetwork
	}
	return ExceptionOther
}
