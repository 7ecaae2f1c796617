// Package classify decides which kind of backup a detected change deserves.
package classify

import (
	"fmt"
	"time"

	"github.com/savekeeper/savekeeper/internal/checksum"
	"github.com/savekeeper/savekeeper/pkg/model"
)

// Settings are the profile options that influence classification.
type Settings struct {
	ManualSaveDetection   bool
	AutoSavesInterval     uint
	AutoSavesIntervalUnit model.IntervalUnit
	AutoSavesMax          uint
}

// Interval returns the configured automatic backup interval.
func (s Settings) Interval() time.Duration {
	return model.Interval(s.AutoSavesInterval, s.AutoSavesIntervalUnit)
}

// Decision is the outcome of Decide.
type Decision struct {
	Kind       model.Kind       `json:"kind"`
	Skip       bool             `json:"skip"`
	Comparison model.Comparison `json:"comparison"`
	Reason     string           `json:"reason"`
}

// Decide classifies the live folder against prior, the latest non-temporary backup (nil if none).
func Decide(settings Settings, live []model.FileChecksum, prior *model.SavegameMeta, now time.Time) Decision {
	if !settings.ManualSaveDetection {
		return Decision{Kind: model.KindKeeper, Comparison: model.NotCompared, Reason: "manual save detection is off"}
	}
	if prior == nil {
		return Decision{Kind: model.KindKeeper, Comparison: model.NotCompared, Reason: "no earlier backup to compare with"}
	}

	cmp := checksum.Compare(live, prior.Checksums)
	switch cmp {
	case model.NoDiff:
		return Decision{Skip: true, Comparison: cmp, Reason: fmt.Sprintf("matches %s", prior.Name)}
	case model.CompleteDiff:
		return Decision{Kind: model.KindKeeper, Comparison: cmp, Reason: fmt.Sprintf("every file differs from %s", prior.Name)}
	}

	elapsed := now.Sub(prior.Time())
	if elapsed > settings.Interval() {
		return Decision{Kind: model.KindAuto, Comparison: cmp,
			Reason: fmt.Sprintf("%s since %s exceeds the %s interval", elapsed.Round(time.Second), prior.Name, settings.Interval())}
	}
	return Decision{Kind: model.KindTemp, Comparison: cmp,
		Reason: fmt.Sprintf("%s since %s is within the %s interval", elapsed.Round(time.Second), prior.Name, settings.Interval())}
}

// LatestNonTemp returns the most recent backup whose kind is not temporary, or nil.
func LatestNonTemp(list []*model.SavegameMeta) *model.SavegameMeta {
	var latest *model.SavegameMeta
	for _, m := range list {
		if m.IsTemp() {
			continue
		}
		if latest == nil || m.Date > latest.Date {
			latest = m
		}
	}
	return latest
}
