package geo

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
)

// Provider resolves an IP address to an ISO country code.
type Provider interface {
	Lookup(ip net.IP) (string, error)
	Close() error
}

// MaxMindProvider implements Provider with a GeoLite2/GeoIP2 Country or
// City database.
type MaxMindProvider struct {
	reader *geoip2.Reader
}

// NewMaxMindProvider opens the mmdb file at dbPath.
func NewMaxMindProvider(dbPath string) (*MaxMindProvider, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

func (m *MaxMindProvider) Lookup(ip net.IP) (string, error) {
	record, err := m.reader.Country(ip)
	if err != nil {
		return "", err
	}
	return record.Country.IsoCode, nil
}

func (m *MaxMindProvider) Close() error {
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}

// Resolver caches Provider lookups by IP string.
type Resolver struct {
	provider Provider

	mu      sync.RWMutex
	cache   map[string]cacheEntry
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	country   string
	expiresAt time.Time
}

// NewResolver wraps provider with a cache of at most cacheSize entries.
func NewResolver(provider Provider, cacheSize int, ttl time.Duration) *Resolver {
	return &Resolver{
		provider: provider,
		cache:    make(map[string]cacheEntry),
		maxSize:  cacheSize,
		ttl:      ttl,
	}
}

// Country returns the ISO country code for ip, or "" when the database has
// no country for it.
func (r *Resolver) Country(ip string) (string, error) {
	if c, ok := r.get(ip); ok {
		return c, nil
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("invalid IP address: %s", ip)
	}
	country, err := r.provider.Lookup(parsed)
	if err != nil {
		return "", err
	}

	r.set(ip, country)
	return country, nil
}

// Close closes the underlying provider.
func (r *Resolver) Close() error {
	return r.provider.Close()
}

func (r *Resolver) get(ip string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[ip]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.country, true
}

func (r *Resolver) set(ip, country string) {
	if r.maxSize <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// evict an arbitrary entry at capacity
	if _, ok := r.cache[ip]; !ok && len(r.cache) >= r.maxSize {
		for k := range r.cache {
			delete(r.cache, k)
			break
		}
	}

	r.cache[ip] = cacheEntry{country: country, expiresAt: time.Now().Add(r.ttl)}
}
