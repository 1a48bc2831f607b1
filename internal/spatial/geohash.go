package spatial

import "github.com/jengzang/legs-backend-go/internal/models"

const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// EncodeGeohash encodes a coordinate into a geohash of 1..12 characters
func EncodeGeohash(c models.Coordinate, precision int) string {
	if precision < 1 {
		precision = 1
	}
	if precision > 12 {
		precision = 12
	}

	latLo, latHi := -90.0, 90.0
	lonLo, lonHi := -180.0, 180.0

	out := make([]byte, 0, precision)
	even := true
	var ch, bits int
	for len(out) < precision {
		ch <<= 1
		if even {
			mid := (lonLo + lonHi) / 2
			if c.Lon > mid {
				ch |= 1
				lonLo = mid
			} else {
				lonHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if c.Lat > mid {
				ch |= 1
				latLo = mid
			} else {
				latHi = mid
			}
		}
		even = !even

		if bits++; bits == 5 {
			out = append(out, base32[ch])
			ch, bits = 0, 0
		}
	}
	return string(out)
}
