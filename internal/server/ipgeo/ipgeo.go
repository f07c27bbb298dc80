// Package ipgeo maps client addresses to countries using a MaxMind MMDB file.
//
// The country is recorded on each session so users can recognize where they
// signed in from.
package ipgeo

import (
	"net/netip"

	"github.com/oschwald/maxminddb-golang/v2"
)

const (
	// Local is returned for loopback, private and link-local addresses.
	Local = "local"
	// Tailscale is returned for addresses in the Tailscale CGNAT range.
	Tailscale = "tailscale"
)

// tailscalePrefix is the Tailscale CGNAT range.
var tailscalePrefix = netip.MustParsePrefix("100.64.0.0/10")

// Checker resolves addresses to ISO 3166-1 alpha-2 country codes.
//
// A nil *Checker is valid and only classifies non-routable addresses.
type Checker struct {
	reader *maxminddb.Reader
}

// Open opens an MMDB country or city database.
func Open(path string) (*Checker, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Checker{reader: r}, nil
}

// Close releases the database.
func (c *Checker) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// CountryCode returns the country of ip, Local or Tailscale for
// non-routable ranges, or "" when unknown.
func (c *Checker) CountryCode(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback(), addr.IsPrivate(), addr.IsUnspecified(), addr.IsLinkLocalUnicast():
		return Local
	case tailscalePrefix.Contains(addr):
		return Tailscale
	case c == nil || c.reader == nil:
		return ""
	}
	var rec countryRecord
	if err := c.reader.Lookup(addr).Decode(&rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}
