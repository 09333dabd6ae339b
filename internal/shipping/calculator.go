package shipping

import (
	"fmt"
	"strings"

	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
)

// Package describes the parcel a gift order ships as.
type Package struct {
	WeightGrams int64
	SizeClass   enums.SizeClass
	Fragile     bool
}

// Destination is where the parcel goes. Country is an ISO 3166-1 alpha-2 code.
type Destination struct {
	Country string
	City    string
}

// Zone buckets destinations for the tariff table.
type Zone string

const (
	ZoneDomestic      Zone = "domestic"
	ZoneEurope        Zone = "europe"
	ZoneInternational Zone = "international"
)

// Tariff is the pricing table the calculator runs on. All amounts are integer
// cents; multipliers are basis points so the math stays exact.
type Tariff struct {
	SizeBaseCents       map[enums.SizeClass]int64
	PerKilogramCents    int64
	FragileSurchargeBps int64
	ZoneMultiplierBps   map[Zone]int64
	CountryZones        map[string]Zone
	HomeCountry         string
}

// DefaultTariff returns the standard pricing table.
func DefaultTariff() Tariff {
	return Tariff{
		SizeBaseCents: map[enums.SizeClass]int64{
			enums.SizeClassSmall:  500,
			enums.SizeClassMedium: 900,
			enums.SizeClassLarge:  1600,
		},
		PerKilogramCents:    250,
		FragileSurchargeBps: 1500,
		ZoneMultiplierBps: map[Zone]int64{
			ZoneDomestic:      10000,
			ZoneEurope:        14000,
			ZoneInternational: 22000,
		},
		CountryZones: map[string]Zone{
			"US": ZoneDomestic,
			"DE": ZoneEurope, "FR": ZoneEurope, "ES": ZoneEurope, "IT": ZoneEurope,
			"NL": ZoneEurope, "PL": ZoneEurope, "GB": ZoneEurope, "IE": ZoneEurope,
		},
		HomeCountry: "US",
	}
}

// Calculator computes shipping fees from the tariff table. It is pure: the
// same package and destination always produce the same fee.
type Calculator struct {
	tariff Tariff
}

// NewCalculator builds a calculator on the given tariff.
func NewCalculator(tariff Tariff) (*Calculator, error) {
	if len(tariff.SizeBaseCents) == 0 {
		return nil, fmt.Errorf("tariff size table required")
	}
	if len(tariff.ZoneMultiplierBps) == 0 {
		return nil, fmt.Errorf("tariff zone table required")
	}
	return &Calculator{tariff: tariff}, nil
}

// Calculate returns the fee in cents. The fee is non-negative and
// non-decreasing in weight and fragility: the weight component only grows with
// grams and the fragile surcharge only adds.
func (c *Calculator) Calculate(pkg Package, dest Destination) (int64, error) {
	if pkg.WeightGrams <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "package weight must be positive")
	}
	if !pkg.SizeClass.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid size class %q", pkg.SizeClass))
	}
	country := strings.ToUpper(strings.TrimSpace(dest.Country))
	if len(country) != 2 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "destination country must be a two-letter code")
	}

	base := c.tariff.SizeBaseCents[pkg.SizeClass]
	weightFee := ceilDiv(pkg.WeightGrams*c.tariff.PerKilogramCents, 1000)

	zone, ok := c.tariff.CountryZones[country]
	if !ok {
		zone = ZoneInternational
	}
	multiplier := c.tariff.ZoneMultiplierBps[zone]
	if multiplier == 0 {
		multiplier = 10000
	}

	fee := ceilDiv((base+weightFee)*multiplier, 10000)
	if pkg.Fragile {
		fee += ceilDiv(fee*c.tariff.FragileSurchargeBps, 10000)
	}
	return fee, nil
}

// ZoneFor resolves the tariff zone for a destination country.
func (c *Calculator) ZoneFor(country string) Zone {
	zone, ok := c.tariff.CountryZones[strings.ToUpper(strings.TrimSpace(country))]
	if !ok {
		return ZoneInternational
	}
	return zone
}

func ceilDiv(numerator, denominator int64) int64 {
	return (numerator + denominator - 1) / denominator
}
