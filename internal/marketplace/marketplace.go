// Package marketplace maps Amazon domain codes to locale specific request parameters.
package marketplace

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnsupportedDomain = errors.New("unsupported domain")

// Marketplace is the request context of one Amazon storefront.
type Marketplace struct {
	Code           string
	Host           string
	Locale         string
	AcceptLanguage string
}

// BaseURL returns the https origin of the storefront.
func (m Marketplace) BaseURL() string {
	return "https://" + m.Host
}

var marketplaces = map[string]Marketplace{
	"com":    {Host: "www.amazon.com", Locale: "en-US", AcceptLanguage: "en-US,en;q=0.9"},
	"co.uk":  {Host: "www.amazon.co.uk", Locale: "en-GB", AcceptLanguage: "en-GB,en;q=0.9"},
	"de":     {Host: "www.amazon.de", Locale: "de-DE", AcceptLanguage: "de-DE,de;q=0.9,en;q=0.8"},
	"fr":     {Host: "www.amazon.fr", Locale: "fr-FR", AcceptLanguage: "fr-FR,fr;q=0.9,en;q=0.8"},
	"it":     {Host: "www.amazon.it", Locale: "it-IT", AcceptLanguage: "it-IT,it;q=0.9,en;q=0.8"},
	"es":     {Host: "www.amazon.es", Locale: "es-ES", AcceptLanguage: "es-ES,es;q=0.9,en;q=0.8"},
	"nl":     {Host: "www.amazon.nl", Locale: "nl-NL", AcceptLanguage: "nl-NL,nl;q=0.9,en;q=0.8"},
	"se":     {Host: "www.amazon.se", Locale: "sv-SE", AcceptLanguage: "sv-SE,sv;q=0.9,en;q=0.8"},
	"pl":     {Host: "www.amazon.pl", Locale: "pl-PL", AcceptLanguage: "pl-PL,pl;q=0.9,en;q=0.8"},
	"com.be": {Host: "www.amazon.com.be", Locale: "fr-BE", AcceptLanguage: "fr-BE,fr;q=0.9,nl;q=0.8,en;q=0.7"},
	"com.tr": {Host: "www.amazon.com.tr", Locale: "tr-TR", AcceptLanguage: "tr-TR,tr;q=0.9,en;q=0.8"},
	"ca":     {Host: "www.amazon.ca", Locale: "en-CA", AcceptLanguage: "en-CA,en;q=0.9,fr;q=0.8"},
	"com.mx": {Host: "www.amazon.com.mx", Locale: "es-MX", AcceptLanguage: "es-MX,es;q=0.9,en;q=0.8"},
	"com.br": {Host: "www.amazon.com.br", Locale: "pt-BR", AcceptLanguage: "pt-BR,pt;q=0.9,en;q=0.8"},
	"com.au": {Host: "www.amazon.com.au", Locale: "en-AU", AcceptLanguage: "en-AU,en;q=0.9"},
	"co.jp":  {Host: "www.amazon.co.jp", Locale: "ja-JP", AcceptLanguage: "ja-JP,ja;q=0.9,en;q=0.8"},
	"in":     {Host: "www.amazon.in", Locale: "en-IN", AcceptLanguage: "en-IN,en;q=0.9,hi;q=0.8"},
	"sg":     {Host: "www.amazon.sg", Locale: "en-SG", AcceptLanguage: "en-SG,en;q=0.9"},
	"ae":     {Host: "www.amazon.ae", Locale: "en-AE", AcceptLanguage: "en-AE,en;q=0.9,ar;q=0.8"},
	"sa":     {Host: "www.amazon.sa", Locale: "ar-SA", AcceptLanguage: "ar-SA,ar;q=0.9,en;q=0.8"},
	"eg":     {Host: "www.amazon.eg", Locale: "ar-EG", AcceptLanguage: "ar-EG,ar;q=0.9,en;q=0.8"},
}

// Resolve returns the marketplace for a domain code such as "com", "de" or "co.uk".
func Resolve(code string) (Marketplace, error) {
	key := strings.ToLower(strings.TrimSpace(code))
	key = strings.TrimPrefix(key, ".")

	m, ok := marketplaces[key]
	if !ok {
		return Marketplace{}, fmt.Errorf("%w: %q", ErrUnsupportedDomain, code)
	}
	m.Code = key
	return m, nil
}

// Codes lists the supported domain codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(marketplaces))
	for code := range marketplaces {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
