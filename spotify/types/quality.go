package types

import (
	"fmt"
)

type Quality int

const (
	QualityAuto Quality = iota
	QualityNormal
	QualityHigh
	QualityVeryHigh
)

func ParseQuality(s string) (Quality, error) {
	switch s {
	case "auto", "":
		return QualityAuto, nil
	case "normal":
		return QualityNormal, nil
	case "high":
		return QualityHigh, nil
	case "very_high":
		return QualityVeryHigh, nil
	default:
		return 0, fmt.Errorf("unsupported download quality: %q", s)
	}
}

func (q Quality) String() string {
	switch q {
	case QualityAuto:
		return "auto"
	case QualityNormal:
		return "normal"
	case QualityHigh:
		return "high"
	case QualityVeryHigh:
		return "very_high"
	}

	return "unknown"
}

// Bitrate is the nominal Ogg Vorbis bitrate in kbps.
func (q Quality) Bitrate() int {
	switch q {
	case QualityNormal:
		return 96
	case QualityHigh:
		return 160
	case QualityVeryHigh:
		return 320
	default:
		return 0
	}
}

// Resolve picks the concrete quality for an item. Episodes are only served at
// normal quality and very_high requires a premium account.
func (q Quality) Resolve(kind Kind, premium bool) Quality {
	if kind == KindEpisode {
		return QualityNormal
	}

	switch q {
	case QualityAuto:
		if premium {
			return QualityVeryHigh
		}
		return QualityHigh
	case QualityVeryHigh:
		if !premium {
			return QualityHigh
		}
		return q
	default:
		return q
	}
}
