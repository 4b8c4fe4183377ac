// Copyright (c) 2025

// Package reactor implements the cooperative, single-threaded per-tile
// poll loop: a fixed set of PollSources are visited once per iteration,
// with a brief idle backoff when none did work.
package reactor
