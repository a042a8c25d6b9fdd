//go:build race

package main

// Hogwild workers race on shared buffers by design.
const raceEnabled = true
