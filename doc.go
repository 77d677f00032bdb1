// Package minirig drives a nine-servo desk rig: a rotating body, two
// antennas and a six-axis platform sharing one Feetech serial bus.
//
// A single control loop owns the bus. It polls positions on a timer,
// applies queued commands in order, and keeps the latest reading in a
// cache that any goroutine can read without touching the hardware.
//
// # Installation
//
//	go install github.com/gwillem/minirig/cmd/minirig@latest
//
// # Usage
//
// Find the rig and write minirig.json:
//
//	minirig scan
//
// Then watch it, or move it:
//
//	minirig monitor
//	minirig wave --amplitude 20
//	minirig hold --period 2s
//
// Every command accepts --sim to run against a simulated rig.
//
// # Packages
//
//   - cmd/minirig: CLI with scan, monitor, wave and hold commands
//   - pkg/rig: actuator map, calibration and configuration
//   - pkg/bus: Feetech transport over the shared serial line
//   - pkg/bus/bustest: simulated rig for tests and --sim
//   - pkg/control: control loop, command queue, position cache and stats
package minirig
