package geo

import (
	"fmt"
	"strings"
)

const (
	// DefaultGeohashPrecision gives cells of roughly 38m x 19m.
	DefaultGeohashPrecision = 8

	maxGeohashPrecision = 12

	geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"
)

// geohashIndex maps an alphabet byte to its 5-bit value, -1 if invalid.
var geohashIndex [256]int8

func init() {
	for i := range geohashIndex {
		geohashIndex[i] = -1
	}
	for i := 0; i < len(geohashAlphabet); i++ {
		geohashIndex[geohashAlphabet[i]] = int8(i)
	}
}

// Geohash encodes (lat, lon) as a geohash of the given length. Bits are
// interleaved starting with longitude and packed five per character. A
// precision <= 0 falls back to DefaultGeohashPrecision; values above 12
// are capped.
func Geohash(lat, lon float64, precision int) string {
	if precision <= 0 {
		precision = DefaultGeohashPrecision
	}
	if precision > maxGeohashPrecision {
		precision = maxGeohashPrecision
	}

	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0

	var hash strings.Builder
	hash.Grow(precision)

	even := true
	bit := 0
	ch := 0
	for hash.Len() < precision {
		if even {
			mid := (minLon + maxLon) / 2
			if lon >= mid {
				ch |= 1 << (4 - bit)
				minLon = mid
			} else {
				maxLon = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				minLat = mid
			} else {
				maxLat = mid
			}
		}
		even = !even

		bit++
		if bit == 5 {
			hash.WriteByte(geohashAlphabet[ch])
			bit = 0
			ch = 0
		}
	}

	return hash.String()
}

// DecodeGeohash returns the cell covered by hash. Decoding is case
// insensitive; any character outside the geohash alphabet is an error.
func DecodeGeohash(hash string) (BoundingBox, error) {
	if hash == "" {
		return BoundingBox{}, fmt.Errorf("geo: empty geohash")
	}

	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0
	even := true

	lower := strings.ToLower(hash)
	for i := 0; i < len(lower); i++ {
		cd := geohashIndex[lower[i]]
		if cd < 0 {
			return BoundingBox{}, fmt.Errorf("geo: invalid geohash character %q in %q", hash[i], hash)
		}
		for j := 4; j >= 0; j-- {
			set := (cd>>j)&1 == 1
			if even {
				mid := (minLon + maxLon) / 2
				if set {
					minLon = mid
				} else {
					maxLon = mid
				}
			} else {
				mid := (minLat + maxLat) / 2
				if set {
					minLat = mid
				} else {
					maxLat = mid
				}
			}
			even = !even
		}
	}

	return BoundingBox{North: maxLat, South: minLat, East: maxLon, West: minLon}, nil
}
