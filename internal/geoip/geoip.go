package geoip

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver maps source IP addresses to country names using a MaxMind
// GeoLite2 database file.
type Resolver struct {
	reader *geoip2.Reader
}

// Open loads the database at path, typically GeoLite2-Country.mmdb.
func Open(path string) (*Resolver, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Resolver{reader: r}, nil
}

// CountryName resolves addr to an English country name. Unparseable
// addresses and addresses with no country mapping both come back empty.
func (r *Resolver) CountryName(addr string) string {
	ip := net.ParseIP(addr)
	if ip == nil {
		return ""
	}
	rec, err := r.reader.Country(ip)
	if err != nil {
		return ""
	}
	return rec.Country.Names["en"]
}

func (r *Resolver) Close() error {
	return r.reader.Close()
}
