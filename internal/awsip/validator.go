// Package awsip checks webhook source addresses against AWS's published
// IP ranges. It is a secondary defense layered on top of the shared
// secret and the SNS signature check, so lookup failures fail open.
package awsip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/wpchill/sessypress/internal/pkg/ttlcache"
)

// RangesURL is AWS's published IP range document.
const RangesURL = "https://ip-ranges.amazonaws.com/ip-ranges.json"

// ServiceAmazon matches any published range regardless of declared service.
const ServiceAmazon = "AMAZON"

const (
	cacheKey = "aws_ip_ranges"
	cacheTTL = 24 * time.Hour
)

// Range is one published CIDR block.
type Range struct {
	CIDR    string `json:"cidr"`
	Service string `json:"service"`
	Region  string `json:"region"`
}

// RangeSet holds the parsed document keyed by address family.
type RangeSet struct {
	IPv4 []Range `json:"ipv4"`
	IPv6 []Range `json:"ipv6"`
}

// Validator answers whether an address belongs to AWS. The range
// document is cached for 24 hours; concurrent repopulation races are
// acceptable (at most a few duplicate fetches).
type Validator struct {
	cache     ttlcache.Cache
	client    *http.Client
	rangesURL string
}

// NewValidator creates a validator backed by the given cache. A nil
// client gets a default with a 10-second timeout.
func NewValidator(cache ttlcache.Cache, client *http.Client) *Validator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Validator{cache: cache, client: client, rangesURL: RangesURL}
}

// SetRangesURL overrides the document URL, used by tests.
func (v *Validator) SetRangesURL(url string) { v.rangesURL = url }

// IsAWSIP reports whether ip falls inside a published AWS range.
// service filters ranges to an exact service match; ServiceAmazon
// matches every range. If the range document cannot be loaded the
// check fails open and returns true.
func (v *Validator) IsAWSIP(ctx context.Context, ip, service string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		log.Printf("[AWSIPValidator] invalid IP format: %s", ip)
		return false
	}

	ranges, err := v.ranges(ctx)
	if err != nil {
		// Fail open: log but allow the request. The secret and
		// signature checks still stand between us and a forgery.
		log.Printf("[AWSIPValidator] failed to load AWS IP ranges, allowing request: %v", err)
		return true
	}

	if v4 := parsed.To4(); v4 != nil {
		return matchRanges(v4, ranges.IPv4, service)
	}
	return matchRanges(parsed, ranges.IPv6, service)
}

func matchRanges(ip net.IP, ranges []Range, service string) bool {
	for _, r := range ranges {
		if service != ServiceAmazon && r.Service != service {
			continue
		}
		_, ipnet, err := net.ParseCIDR(r.CIDR)
		if err != nil {
			continue
		}
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

func (v *Validator) ranges(ctx context.Context) (*RangeSet, error) {
	if cached, err := v.cache.Get(ctx, cacheKey); err == nil {
		var rs RangeSet
		if err := json.Unmarshal([]byte(cached), &rs); err == nil {
			return &rs, nil
		}
		// Corrupt cache entry, refetch
		v.cache.Delete(ctx, cacheKey)
	}

	rs, err := v.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rs); err == nil {
		if err := v.cache.Set(ctx, cacheKey, string(data), cacheTTL); err != nil {
			log.Printf("[AWSIPValidator] cache write failed: %v", err)
		}
	}
	return rs, nil
}

// awsRangeDoc mirrors the published ip-ranges.json layout.
type awsRangeDoc struct {
	Prefixes []struct {
		IPPrefix string `json:"ip_prefix"`
		Region   string `json:"region"`
		Service  string `json:"service"`
	} `json:"prefixes"`
	IPv6Prefixes []struct {
		IPv6Prefix string `json:"ipv6_prefix"`
		Region     string `json:"region"`
		Service    string `json:"service"`
	} `json:"ipv6_prefixes"`
}

func (v *Validator) fetch(ctx context.Context) (*RangeSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.rangesURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download AWS IP ranges: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download AWS IP ranges: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read AWS IP ranges: %w", err)
	}

	var doc awsRangeDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse AWS IP ranges: %w", err)
	}
	if len(doc.Prefixes) == 0 {
		return nil, fmt.Errorf("parse AWS IP ranges: no prefixes")
	}

	rs := &RangeSet{}
	for _, p := range doc.Prefixes {
		service := p.Service
		if service == "" {
			service = ServiceAmazon
		}
		region := p.Region
		if region == "" {
			region = "GLOBAL"
		}
		rs.IPv4 = append(rs.IPv4, Range{CIDR: p.IPPrefix, Service: service, Region: region})
	}
	for _, p := range doc.IPv6Prefixes {
		service := p.Service
		if service == "" {
			service = ServiceAmazon
		}
		region := p.Region
		if region == "" {
			region = "GLOBAL"
		}
		rs.IPv6 = append(rs.IPv6, Range{CIDR: p.IPv6Prefix, Service: service, Region: region})
	}
	return rs, nil
}
