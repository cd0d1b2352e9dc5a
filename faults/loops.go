package faults

import (
	"crypto/sha256"
	"log/slog"
	"runtime"
	"strconv"
)

const (
	SpinReportEvery = 1_000_000
	HogBlockLen     = 1_000_000 // int64s, ~8MB per block
	HogReportEvery  = 10
)

// Spinner pins one core until the process dies. There is no way to stop it.
type Spinner struct {
	Logger *slog.Logger
	Every  uint64

	limit uint64
}

func NewSpinner(logger *slog.Logger) *Spinner {
	return &Spinner{Logger: logger, Every: SpinReportEvery}
}

func (s *Spinner) Run() {
	s.Logger.Warn("INFINITE LOOP TRIGGERED - CPU will spike to 100%")

	every := s.Every
	if every == 0 {
		every = SpinReportEvery
	}

	var counter uint64
	var acc byte
	for s.limit == 0 || counter < s.limit {
		counter++
		sum := sha256.Sum256([]byte("loop_" + strconv.FormatUint(counter, 10)))
		acc ^= sum[0]

		if counter%every == 0 {
			s.Logger.Warn("Still looping...", "iteration", counter)
		}
	}
	runtime.KeepAlive(acc)
}

// Hog grows the heap by one block per iteration and never lets go.
type Hog struct {
	Logger   *slog.Logger
	BlockLen int
	Every    uint64

	limit uint64
	held  [][]int64
}

func NewHog(logger *slog.Logger) *Hog {
	return &Hog{Logger: logger, BlockLen: HogBlockLen, Every: HogReportEvery}
}

func (h *Hog) Run() {
	h.Logger.Warn("MEMORY BOMB TRIGGERED - Memory usage will spike")

	every := h.Every
	if every == 0 {
		every = HogReportEvery
	}

	var counter uint64
	for h.limit == 0 || counter < h.limit {
		block := make([]int64, h.BlockLen)
		// touch every page so the allocation is resident, not just reserved
		for i := 0; i < len(block); i += 512 {
			block[i] = 1
		}
		h.held = append(h.held, block)
		counter++

		if counter%every == 0 {
			h.Logger.Warn("Memory bomb growing", "iteration", counter, "approx_mb", h.consumedMB(counter))
		}
	}
	runtime.KeepAlive(h.held)
}

func (h *Hog) consumedMB(blocks uint64) uint64 {
	return blocks * uint64(h.BlockLen) * 8 / 1_000_000
}
