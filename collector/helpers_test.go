package collector

import (
	"io"
	"log/slog"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testBase = time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

func timeAt(sec int) time.Time {
	return testBase.Add(time.Duration(sec) * time.Second)
}
