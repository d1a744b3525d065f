package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"vetreview/internal/adapters/observability"
)

var (
	// ErrBlockedAddress is returned when a URL resolves to a loopback, private
	// or otherwise non-public address.
	ErrBlockedAddress = errors.New("objectstore: address not allowed")
	ErrHostNotAllowed = errors.New("objectstore: host not in allow-list")
)

const maxRedirects = 5

// HTTPFetcher downloads images over HTTP(S). One attempt per call. It only
// dials public addresses and, when allowedHosts is set, only those hosts.
type HTTPFetcher struct {
	hc      *http.Client
	rl      *rate.Limiter
	maxSize int64
	allowed map[string]struct{}
}

func NewHTTPFetcher(timeout time.Duration, maxSize int64, rps int, allowedHosts []string) *HTTPFetcher {
	return newHTTPFetcher(timeout, maxSize, rps, allowedHosts, false)
}

func newHTTPFetcher(timeout time.Duration, maxSize int64, rps int, allowedHosts []string, allowPrivate bool) *HTTPFetcher {
	if rps <= 0 {
		rps = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	f := &HTTPFetcher{
		rl:      rate.NewLimiter(rate.Limit(rps), rps),
		maxSize: maxSize,
		allowed: lo.SliceToMap(lo.Compact(lo.Map(allowedHosts, func(h string, _ int) string {
			return strings.ToLower(strings.TrimSpace(h))
		})), func(h string) (string, struct{}) { return h, struct{}{} }),
	}

	d := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	if !allowPrivate {
		d.Control = publicOnly
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil // a proxy would dial on our behalf and skip the address check
	tr.DialContext = d.DialContext

	f.hc = &http.Client{
		Timeout:   timeout,
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return f.checkHost(req.URL)
		},
	}
	return f
}

func (f *HTTPFetcher) checkHost(u *url.URL) error {
	if len(f.allowed) == 0 {
		return nil
	}
	if _, ok := f.allowed[strings.ToLower(u.Hostname())]; !ok {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	return nil
}

// publicOnly runs after DNS resolution, so it sees the address actually dialed.
func publicOnly(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !isPublic(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

func isPublic(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsValid() &&
		!ip.IsLoopback() &&
		!ip.IsPrivate() &&
		!ip.IsUnspecified() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsInterfaceLocalMulticast() &&
		!ip.IsMulticast() &&
		!sharedAddressSpace.Contains(ip)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	// client-side rate limiting
	if err := f.rl.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	if err := f.checkHost(req.URL); err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("User-Agent", "vetreview/1.0")

	start := time.Now()
	resp, err := f.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("http", "image", 0, time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("http", "image", resp.StatusCode, time.Since(start))

	switch resp.StatusCode {
	case http.StatusOK:
		if resp.ContentLength > f.maxSize {
			return nil, ErrTooLarge
		}
		return readLimited(resp.Body, f.maxSize)

	case http.StatusNotFound:
		return nil, ErrNotFound

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrForbidden

	default:
		// read a small error body for diagnostics
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
}
