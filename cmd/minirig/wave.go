package main

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gwillem/minirig/pkg/control"
	"github.com/gwillem/minirig/pkg/rig"
)

const closeTimeout = 2 * time.Second

type WaveCommand struct {
	Amplitude float64       `long:"amplitude" default:"30" description:"Amplitude in degrees"`
	Freq      float64       `long:"freq" default:"0.25" description:"Frequency in Hz"`
	Rate      time.Duration `long:"rate" default:"10ms" description:"Interval between goal updates"`
}

func (c *WaveCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	ctx, stop := signalContext()
	defer stop()

	loop, err := startLoop(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLoop(loop, logger)

	if err := loop.PushCommand(ctx, control.EnableTorque{}); err != nil {
		return err
	}

	amp := mgl64.DegToRad(c.Amplitude)
	cal := cfg.CalibrationFor(loop.Map())
	fmt.Println(headerStyle.Render("Sine wave"), dimStyle.Render("Ctrl+C to stop"))

	ticker := time.NewTicker(c.Rate)
	defer ticker.Stop()
	t0 := time.Now()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Println("Shutting down, disabling torque...")
			return nil
		case now := <-ticker.C:
			t := now.Sub(t0).Seconds()
			goal := math.Sin(2*math.Pi*c.Freq*t) * amp

			var cmd control.SetAllGoalPositions
			for i := range cmd.Positions {
				cmd.Positions[i] = goal
			}
			clampGoals(&cmd, cal)
			if err := loop.PushCommand(ctx, cmd); err != nil {
				if ctx.Err() != nil {
					continue
				}
				return err
			}

			snap, err := loop.LastPosition()
			if err != nil {
				fmt.Printf("\rTime: %6.2fs | %s", t, err)
				continue
			}
			maxErr, meanErr := trackingError(snap.Vector(), cmd.Positions[:])
			fmt.Printf("\rTime: %6.2fs | Goal: %6.1f° | Max Error: %5.2f° | Mean Error: %5.2f°",
				t, mgl64.RadToDeg(goal), mgl64.RadToDeg(maxErr), mgl64.RadToDeg(meanErr))
		}
	}
}

// clampGoals keeps every goal inside the motor's calibrated range.
func clampGoals(cmd *control.SetAllGoalPositions, cal rig.Calibration) {
	for i, name := range rig.AllMotors() {
		mc, ok := cal[name]
		if !ok || (mc.RangeMin == 0 && mc.RangeMax == 0) {
			continue
		}
		cmd.Positions[i] = mgl64.Clamp(cmd.Positions[i], mc.RangeMin, mc.RangeMax)
	}
}

func trackingError(current, goal []float64) (maxErr, meanErr float64) {
	for i := range goal {
		e := math.Abs(current[i] - goal[i])
		maxErr = max(maxErr, e)
		meanErr += e
	}
	return maxErr, meanErr / float64(len(goal))
}
