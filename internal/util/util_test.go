package util

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRateLimiterFirstCall(t *testing.T) {
	rl := NewRateLimiter(60)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait should not block or fail: %v", err)
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "info", "json")
	log.Info("hello", "k", "v")
	if !strings.Contains(buf.String(), `"k":"v"`) {
		t.Errorf("json logger output = %q, want JSON attrs", buf.String())
	}

	buf.Reset()
	log = NewLogger(&buf, "warn", "text")
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info line should be filtered at warn level, got %q", buf.String())
	}
	log.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn line missing from output %q", buf.String())
	}
}

func TestFormatPrice(t *testing.T) {
	if got := FormatPrice(0); got != "-" {
		t.Errorf("FormatPrice(0) = %q, want -", got)
	}
	if got := FormatPrice(234.1); got != "234.10" {
		t.Errorf("FormatPrice(234.1) = %q", got)
	}
}

func TestFormatVolume(t *testing.T) {
	for _, tc := range []struct {
		in   int64
		want string
	}{
		{512, "512"},
		{18_400, "18.4K"},
		{188_200_000, "188.2M"},
		{2_100_000_000, "2.1B"},
	} {
		if got := FormatVolume(tc.in); got != tc.want {
			t.Errorf("FormatVolume(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatInt(t *testing.T) {
	for _, tc := range []struct {
		in   int
		want string
	}{
		{7, "7"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	} {
		if got := FormatInt(tc.in); got != tc.want {
			t.Errorf("FormatInt(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
