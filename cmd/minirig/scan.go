package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.bug.st/serial"

	"github.com/gwillem/minirig/pkg/bus"
	"github.com/gwillem/minirig/pkg/bus/bustest"
	"github.com/gwillem/minirig/pkg/rig"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type ScanCommand struct {
	Variant string `long:"variant" choice:"mixed" choice:"single" description:"Hardware variant; asked interactively when omitted"`
}

type pingResult struct {
	motor  rig.MotorName
	id     int
	family rig.Family
	model  int
	err    error
}

// pingAll pings every motor of m.
func pingAll(ctx context.Context, tr bus.Transport, m *rig.ActuatorMap) (results []pingResult, found int) {
	for _, g := range m.Groups() {
		for i, id := range g.IDs {
			model, err := tr.Ping(ctx, g.Family, id)
			if err == nil {
				found++
			}
			results = append(results, pingResult{motor: g.Motors[i], id: id, family: g.Family, model: model, err: err})
		}
	}
	return results, found
}

type portScan struct {
	port    string
	results []pingResult
	found   int
}

func (c *ScanCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("minirig scan"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	cfg := rig.DefaultConfig()
	if existing, err := rig.LoadConfigFrom(opts.Config); err == nil {
		cfg = existing
	}

	variant := rig.Variant(c.Variant)
	if variant == "" {
		if err := huh.NewSelect[rig.Variant]().
			Title("Which rig variant?").
			Options(
				huh.NewOption("Mixed (platform STS, body and antennas SCS)", rig.VariantMixed),
				huh.NewOption("Single (all STS)", rig.VariantSingle),
			).
			Value(&variant).
			Run(); err != nil {
			return err
		}
	}
	m, err := rig.NewActuatorMap(variant, cfg.IDs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if opts.Sim {
		results, _ := pingAll(ctx, bustest.NewSim(m), m)
		fmt.Println(renderPings(results))
		fmt.Println(dimStyle.Render("Simulated rig, config not saved."))
		return nil
	}

	scans := scanPorts(ctx, m, cfg.BaudRate)
	var complete []portScan
	for _, s := range scans {
		if s.found == rig.NumMotors {
			complete = append(complete, s)
		}
	}

	if len(complete) == 0 {
		for _, s := range scans {
			if s.found > 0 {
				fmt.Printf("%s: %d of %d motors answered\n", s.port, s.found, rig.NumMotors)
				fmt.Println(renderPings(s.results))
			}
		}
		return fmt.Errorf("no port with all %d motors found; check power and the variant", rig.NumMotors)
	}

	chosen := complete[0]
	if len(complete) > 1 {
		var options []huh.Option[int]
		for i, s := range complete {
			options = append(options, huh.NewOption(s.port, i))
		}
		var idx int
		if err := huh.NewSelect[int]().
			Title("Several rigs found. Which one?").
			Options(options...).
			Value(&idx).
			Run(); err != nil {
			return err
		}
		chosen = complete[idx]
	}

	fmt.Println(renderPings(chosen.results))

	cfg.Port = chosen.port
	cfg.Variant = variant
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Println(successStyle.Render("Rig found on " + chosen.port))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Watch it with: " + headerStyle.Render("minirig monitor"))
	return nil
}

func scanPorts(ctx context.Context, m *rig.ActuatorMap, baud int) []portScan {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var scans []portScan
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		fb, err := bus.Open(bus.Config{
			Port:     port,
			BaudRate: baud,
			Timeout:  50 * time.Millisecond,
		})
		if err != nil {
			continue
		}
		results, found := pingAll(ctx, fb, m)
		fb.Close()

		fmt.Printf("  %s: %d motor(s)\n", port, found)
		scans = append(scans, portScan{port: port, results: results, found: found})
	}
	return scans
}

func renderPings(results []pingResult) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headStyle := cellStyle.Bold(true).Foreground(lipgloss.Color("12"))

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := successStyle.Render("ok")
		model := fmt.Sprintf("%d", r.model)
		if r.err != nil {
			status = errorStyle.Render(r.err.Error())
			model = "-"
		}
		rows = append(rows, []string{string(r.motor), fmt.Sprintf("%d", r.id), r.family.String(), model, status})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "ID", "Family", "Model", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		}).
		Render()
}
