package geoip

import (
	"context"
	"net"

	"github.com/oschwald/maxminddb-golang"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// lookupBatchSize bounds how many addresses are resolved concurrently.
const lookupBatchSize = 10

// countryRecord maps the MMDB country section.
type countryRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
}

// Country is one resolved geo lookup result.
type Country struct {
	Code string
	Name string
}

// Resolver resolves client IPs to countries from a local MMDB database.
// Enrichment is best-effort: a Resolver without a database (missing or
// unreadable file) answers nil for every address instead of failing.
type Resolver struct {
	reader *maxminddb.Reader
	log    zerolog.Logger
}

// Open loads the MMDB file at path. It never returns an error: an empty or
// unreadable path yields a degraded resolver that resolves everything to nil.
func Open(path string, logger zerolog.Logger) *Resolver {
	log := logger.With().Str("component", "geoip").Logger()
	if path == "" {
		log.Warn().Msg("no geoip database configured, country enrichment disabled")
		return &Resolver{log: log}
	}
	reader, err := maxminddb.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("geoip database unavailable, country enrichment disabled")
		return &Resolver{log: log}
	}
	log.Info().Str("path", path).Msg("geoip database loaded")
	return &Resolver{reader: reader, log: log}
}

// Available reports whether the resolver has a database to query.
func (r *Resolver) Available() bool { return r.reader != nil }

// Close releases the MMDB reader.
func (r *Resolver) Close() error {
	if r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

// GetCountry resolves a single address. Malformed, private, and unknown
// addresses resolve to nil.
func (r *Resolver) GetCountry(ip string) *Country {
	if r.reader == nil {
		return nil
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return nil
	}
	var rec countryRecord
	if err := r.reader.Lookup(parsed, &rec); err != nil {
		r.log.Debug().Err(err).Str("ip", ip).Msg("geoip lookup failed")
		return nil
	}
	if rec.Country.ISOCode == "" {
		return nil
	}
	return &Country{Code: rec.Country.ISOCode, Name: rec.Country.Names["en"]}
}

// ResolveCountries resolves a set of addresses to ISO country codes. Input is
// deduplicated and looked up in bounded batches; unresolvable addresses map
// to nil. The returned map has an entry for every distinct input address.
func (r *Resolver) ResolveCountries(ctx context.Context, ips []string) map[string]*string {
	distinct := make([]string, 0, len(ips))
	seen := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if ip == "" {
			continue
		}
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		distinct = append(distinct, ip)
	}

	out := make(map[string]*string, len(distinct))
	if len(distinct) == 0 {
		return out
	}

	results := make([]*string, len(distinct))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(lookupBatchSize)
	for i, ip := range distinct {
		g.Go(func() error {
			if c := r.GetCountry(ip); c != nil {
				results[i] = &c.Code
			}
			return nil
		})
	}
	_ = g.Wait() // lookups never return errors

	for i, ip := range distinct {
		out[ip] = results[i]
	}
	return out
}
