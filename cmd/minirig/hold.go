package main

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gwillem/minirig/pkg/control"
	"github.com/gwillem/minirig/pkg/rig"
)

// Two resting poses recorded on a calibrated rig, in vector order.
var (
	lowerPose = [rig.NumMotors]float64{
		0.0015, 3.0434, -3.0434,
		-0.8621, 0.7609, -0.3758, 0.3221, -0.7470, 0.7931,
	}
	upperPose = [rig.NumMotors]float64{
		-0.0046, 3.0434, -3.0434,
		0.4479, -0.4495, 0.5829, -0.5062, 0.3789, -0.4863,
	}
)

type HoldCommand struct {
	Period time.Duration `long:"period" default:"1s" description:"Time spent in each pose"`
}

func (c *HoldCommand) Execute(args []string) error {
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
	fmt.Println(headerStyle.Render("Hold"), dimStyle.Render("Ctrl+C to stop"))

	ticker := time.NewTicker(c.Period)
	defer ticker.Stop()

	poses := [][rig.NumMotors]float64{lowerPose, upperPose}
	for i := 0; ; i++ {
		pose := poses[i%len(poses)]
		if err := loop.PushCommand(ctx, control.SetAllGoalPositions{Positions: pose}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Println("Shutting down, disabling torque...")
			return nil
		case <-ticker.C:
		}

		snap, err := loop.LastPosition()
		if err != nil {
			fmt.Printf("\r%-80s", err)
			continue
		}
		maxErr, _ := trackingError(snap.Vector(), pose[:])
		fmt.Printf("\rpose %d | health %-12s | max error %5.2f°", i%len(poses), loop.Health(), mgl64.RadToDeg(maxErr))
	}
}
