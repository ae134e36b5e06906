package alignment

import "photonlag/domain/photon"

const (
	// fermiMETZeroUnix is 2001-01-01T00:00:00Z.
	fermiMETZeroUnix = 978307200.0
	// mjdZeroUnixSeconds is MJD 0 (1858-11-17) in unix seconds.
	mjdZeroUnixSeconds = -3506716800.0
)

// leapSecondsSince2001 are the unix instants of leap second insertions
// after the Fermi MET zero point. MET counts them, unix time does not.
var leapSecondsSince2001 = []float64{
	1136073600, // 2006-01-01
	1230768000, // 2009-01-01
	1341100800, // 2012-07-01
	1435708800, // 2015-07-01
	1483228800, // 2017-01-01
}

// ToUnix converts seconds on epoch e to unix seconds. Relative and local
// axes have no absolute zero and are returned unchanged with ok=false.
func ToUnix(t float64, e photon.Epoch) (unix float64, ok bool) {
	switch e {
	case photon.EpochUnix:
		return t, true
	case photon.EpochFermiMET:
		u := fermiMETZeroUnix + t
		leaps := 0.0
		for _, l := range leapSecondsSince2001 {
			if u-leaps-1 >= l {
				leaps++
			}
		}
		return u - leaps, true
	case photon.EpochMJD:
		return t + mjdZeroUnixSeconds, true
	default:
		return t, false
	}
}

// Absolute reports whether e has a known zero point.
func Absolute(e photon.Epoch) bool {
	_, ok := ToUnix(0, e)
	return ok
}
