package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/m3rciful/taskly/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
	// ErrRecipientUnreachable marks a permanent rejection: blocked, deactivated or unknown chat.
	ErrRecipientUnreachable = errors.New("telegram sender: recipient unreachable")
	// ErrNotBound is returned when the gateway is used before the bot exists.
	ErrNotBound = errors.New("telegram sender: gateway not bound")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// IsPermanent reports whether Telegram refused the recipient for good.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRecipientUnreachable) ||
		errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrUserIsDeactivated) ||
		errors.Is(err, tele.ErrChatNotFound) {
		return true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusForbidden {
			return true
		}
		desc := strings.ToLower(apiErr.Description)
		return strings.Contains(desc, "chat not found") || strings.Contains(desc, "user is deactivated")
	}
	return false
}

// IsTransient reports whether another attempt may succeed.
func IsTransient(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	if netutil.ShouldRetry(err) {
		return true
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return true
	}
	return httpStatusFromError(err) >= 500
}

// retryAfter returns the server-requested wait, if any.
func retryAfter(err error) int {
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return floodErr.RetryAfter
	}
	return 0
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if IsPermanent(err) {
		return "unreachable"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return "timeout"
		}
		if opErr.Op == "dial" {
			return "dial"
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "timeout"
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	switch status := httpStatusFromError(err); {
	case status == http.StatusTooManyRequests:
		return "flood"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// sanitizeErrorMessage prevents accidental leakage of Telegram bot tokens in logs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func httpStatusFromError(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	return 0
}
