//go:build race

package train_test

// Hogwild workers race on shared buffers by design.
const raceEnabled = true
