// Package fingerprint confirms that a proxy actually forwards traffic and
// identifies the exit it forwards through. A probe request is sent through
// the proxy to the fingerprint endpoint; the reported exit IP is then
// enriched with GeoLite ASN and city data.
package fingerprint

import (
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"

	"flotilla/internal/domain"
)

// Enricher decorates fingerprints with geo and ASN data. Both databases are
// optional: a missing file only disables its part of the enrichment.
type Enricher struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

func NewEnricher(cityPath, asnPath string) *Enricher {
	e := &Enricher{}

	if cityPath != "" {
		city, err := geoip2.Open(cityPath)
		if err != nil {
			log.Warn("fingerprint: city database unavailable", "path", cityPath, "error", err)
		} else {
			e.city = city
		}
	}
	if asnPath != "" {
		asn, err := geoip2.Open(asnPath)
		if err != nil {
			log.Warn("fingerprint: asn database unavailable", "path", asnPath, "error", err)
		} else {
			e.asn = asn
		}
	}
	return e
}

func (e *Enricher) Close() {
	if e.city != nil {
		_ = e.city.Close()
	}
	if e.asn != nil {
		_ = e.asn.Close()
	}
}

// Enrich fills the geo fields of fp from its IP. Unparseable addresses and
// lookup misses leave fp untouched.
func (e *Enricher) Enrich(fp *domain.Fingerprint) {
	if fp == nil {
		return
	}
	ip := net.ParseIP(fp.IP)
	if ip == nil {
		return
	}

	if e.city != nil {
		if record, err := e.city.City(ip); err == nil {
			fp.ContinentCode = record.Continent.Code
			fp.ContinentName = record.Continent.Names["en"]
			fp.CountryCode = record.Country.IsoCode
			fp.CountryName = record.Country.Names["en"]
			fp.CityName = record.City.Names["en"]
			fp.Timezone = record.Location.TimeZone
			fp.Latitude = record.Location.Latitude
			fp.Longitude = record.Location.Longitude
		}
	}

	if e.asn != nil {
		if record, err := e.asn.ASN(ip); err == nil {
			fp.ASNName = record.AutonomousSystemOrganization
			fp.ASNNetwork = fmt.Sprintf("AS%d", record.AutonomousSystemNumber)
		}
	}
}
