package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// QueryPlaceholder is substituted with the URL-escaped topic in feed search templates.
const QueryPlaceholder = "{query}"

// EndpointValidator checks provider, feed and backend URLs before any
// request is made against them.
type EndpointValidator struct {
	// AllowLocalhost determines if localhost URLs are permitted
	AllowLocalhost bool
	// AllowPrivateIPs determines if private IP addresses are permitted
	AllowPrivateIPs bool
	MaxLength       int
}

// NewEndpointValidator blocks localhost and private ranges.
func NewEndpointValidator() *EndpointValidator {
	return &EndpointValidator{
		MaxLength: 2048,
	}
}

// NewPermissiveEndpointValidator allows local development backends.
func NewPermissiveEndpointValidator() *EndpointValidator {
	return &EndpointValidator{
		AllowLocalhost:  true,
		AllowPrivateIPs: true,
		MaxLength:       2048,
	}
}

// ValidateAndNormalize validates an endpoint and returns its normalized form.
// A missing scheme defaults to https. Trailing slashes are dropped so
// callers can join paths onto the result.
func (v *EndpointValidator) ValidateAndNormalize(input string) (string, error) {
	parsed, err := v.parse(input)
	if err != nil {
		return "", err
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed.String(), nil
}

// ValidateTemplate validates a feed search URL that carries the query
// placeholder. The placeholder itself is preserved in the returned value.
func (v *EndpointValidator) ValidateTemplate(input string) (string, error) {
	if !strings.Contains(input, QueryPlaceholder) {
		return "", fmt.Errorf("search template must contain %s", QueryPlaceholder)
	}
	probe := strings.ReplaceAll(input, QueryPlaceholder, "probe")
	if _, err := v.parse(probe); err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// ExpandTemplate fills the query placeholder with an escaped topic.
func ExpandTemplate(template, query string) string {
	return strings.ReplaceAll(template, QueryPlaceholder, url.QueryEscape(query))
}

// ValidateAssetURL checks an image URL returned by a provider. Assets are
// handed to the backend verbatim so they must be absolute http(s) URLs.
func (v *EndpointValidator) ValidateAssetURL(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return errors.New("asset URL is empty")
	}
	parsed, err := url.Parse(input)
	if err != nil {
		return fmt.Errorf("invalid asset URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("asset URL must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("asset URL has no host")
	}
	return nil
}

func (v *EndpointValidator) parse(input string) (*url.URL, error) {
	input = strings.TrimSpace(input)

	if input == "" {
		return nil, errors.New("URL cannot be empty")
	}
	if len(input) > v.MaxLength {
		return nil, fmt.Errorf("URL too long (max %d characters)", v.MaxLength)
	}
	if strings.ContainsAny(input, "<>\"'`") {
		return nil, errors.New("URL contains invalid characters")
	}

	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		input = "https://" + input
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Host == "" {
		return nil, errors.New("URL must have a valid hostname")
	}
	if err := v.checkHost(parsed.Hostname()); err != nil {
		return nil, err
	}
	if strings.Contains(parsed.Path, "..") {
		return nil, errors.New("directory traversal patterns not allowed in URL path")
	}
	return parsed, nil
}

func (v *EndpointValidator) checkHost(hostname string) error {
	if !v.AllowLocalhost && isLocalhost(hostname) {
		return errors.New("localhost URLs are not permitted")
	}
	if ip := net.ParseIP(hostname); ip != nil {
		if !v.AllowPrivateIPs && (ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()) {
			return errors.New("private IP addresses are not permitted")
		}
		if ip.IsUnspecified() || ip.Equal(net.IPv4bcast) {
			return errors.New("unroutable IP address")
		}
	}
	return nil
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasSuffix(hostname, ".localhost")
}
