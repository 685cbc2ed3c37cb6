// Package media holds the helpers shared by the audio and video players.
package media

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
	KindOther MediaKind = "other"
)

const VolumeStep = 0.1

var extKinds = map[string]MediaKind{
	".mp3":  KindAudio,
	".wav":  KindAudio,
	".ogg":  KindAudio,
	".oga":  KindAudio,
	".flac": KindAudio,
	".m4a":  KindAudio,
	".aac":  KindAudio,
	".opus": KindAudio,
	".mp4":  KindVideo,
	".m4v":  KindVideo,
	".webm": KindVideo,
	".ogv":  KindVideo,
	".mov":  KindVideo,
	".mkv":  KindVideo,
}

// Kind classifies a media path by extension.
func Kind(path string) MediaKind {
	if k, ok := extKinds[strings.ToLower(filepath.Ext(path))]; ok {
		return k
	}
	return KindOther
}

// FormatTime renders a position as m:ss, or h:mm:ss past the hour. Negative
// and non-finite values render as 0:00.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// SeekFraction converts a click offset on a progress bar of the given width
// into a fraction of the duration.
func SeekFraction(x, width float64) float64 {
	if width <= 0 {
		return 0
	}
	return clamp01(x / width)
}

func SeekTime(x, width, duration float64) float64 {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0
	}
	return SeekFraction(x, width) * duration
}

func ClampVolume(v float64) float64 {
	return clamp01(v)
}

// StepVolume moves the volume by steps of VolumeStep, rounded to one decimal.
func StepVolume(v float64, steps int) float64 {
	v = ClampVolume(v + float64(steps)*VolumeStep)
	return math.Round(v*10) / 10
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
