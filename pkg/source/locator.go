package source

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type Kind int

const (
	KindDevice Kind = iota
	KindURL
)

func (k Kind) String() string {
	if k == KindURL {
		return "url"
	}
	return "device"
}

// Locator is a parsed device locator.
type Locator struct {
	Kind Kind
	// Value is the URL or the device path.
	Value string
}

// ParseLocator accepts http(s) URLs, bare device indexes ("0" means
// /dev/video0) and device paths.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}
	if idx, err := strconv.Atoi(s); err == nil {
		if idx < 0 {
			return Locator{}, fmt.Errorf("invalid device index %d", idx)
		}
		return Locator{Kind: KindDevice, Value: fmt.Sprintf("/dev/video%d", idx)}, nil
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return Locator{}, fmt.Errorf("invalid locator %q: %w", s, err)
		}
		switch u.Scheme {
		case "http", "https":
		default:
			return Locator{}, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, s)
		}
		if u.Host == "" {
			return Locator{}, fmt.Errorf("missing host in %q", s)
		}
		return Locator{Kind: KindURL, Value: u.String()}, nil
	}

	return Locator{Kind: KindDevice, Value: s}, nil
}
