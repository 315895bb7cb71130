// Package signal holds the waveform side of the pipeline: a synthetic PPG
// source and the zero-phase band-pass that conditions raw samples before
// beat detection.
package signal
