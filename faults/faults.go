// Package faults burns CPU and memory on purpose so that host and container
// alarms have something to fire on.
package faults

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"time"
)

const DefaultIterations = 10_000_000

type Summary struct {
	Status         string  `json:"status"`
	Iterations     int     `json:"iterations"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Message        string  `json:"message"`
}

// Stress does a fixed amount of hashing and allocation and reports how long
// it took. The first iteration also runs an inner sha512 chain of the same
// length over its sha256 digest.
func Stress(logger *slog.Logger, iterations int) Summary {
	start := time.Now()
	logger.Info("Starting stress test...", "iterations", iterations)

	var acc byte
	for i := 0; i < iterations; i++ {
		sum := sha256.Sum256([]byte("stress_test_" + strconv.Itoa(i)))
		digest := hex.EncodeToString(sum[:])

		if i%iterations == 0 {
			for j := 0; j < iterations; j++ {
				inner := sha512.Sum512([]byte(digest))
				acc ^= inner[0]
			}
		}
		acc ^= digest[0]
	}

	squares := make([]int, iterations)
	for i := range squares {
		squares[i] = i * i
	}
	runtime.KeepAlive(squares)
	runtime.KeepAlive(acc)

	elapsed := math.Round(time.Since(start).Seconds()*100) / 100
	logger.Info("Stress test completed", "elapsed_seconds", elapsed)

	return Summary{
		Status:         "completed",
		Iterations:     iterations,
		ElapsedSeconds: elapsed,
		Message:        "Resource-intensive operation finished",
	}
}
