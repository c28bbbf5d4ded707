// Package validation runs walk-forward, stress-lane validation studies over
// candidate strategies and ranks them by their worst-case score.
package validation

import (
	"fmt"
	"time"

	"signal-replay-lab/internal/domain"
)

const secondsPerDay = int64(24 * time.Hour / time.Second)

// GenerateWindows slides a (train, test) pair over [studyStart, studyEnd] in
// steps of stepDays, keeping every window whose test range ends at or before
// studyEnd. A study range shorter than trainDays+testDays yields no windows.
func GenerateWindows(studyStart, studyEnd int64, trainDays, testDays, stepDays int) ([]domain.RollingWindow, error) {
	if trainDays < 0 || testDays <= 0 || stepDays <= 0 {
		return nil, domain.Errorf(domain.ErrConfiguration,
			"window days must satisfy train >= 0, test > 0, step > 0 (got %d/%d/%d)", trainDays, testDays, stepDays)
	}
	if studyEnd <= studyStart {
		return nil, domain.Errorf(domain.ErrConfiguration, "study end %d not after start %d", studyEnd, studyStart)
	}

	train := int64(trainDays) * secondsPerDay
	test := int64(testDays) * secondsPerDay
	step := int64(stepDays) * secondsPerDay

	var windows []domain.RollingWindow
	for from := studyStart; from+train+test <= studyEnd; from += step {
		w := domain.RollingWindow{
			TrainFrom: from,
			TrainTo:   from + train,
			TestFrom:  from + train,
			TestTo:    from + train + test,
		}
		w.WindowID = fmt.Sprintf("w%03d-%s", len(windows), time.Unix(w.TestFrom, 0).UTC().Format("20060102"))
		windows = append(windows, w)
	}
	return windows, nil
}
