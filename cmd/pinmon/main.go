// Command pinmon is a live terminal dashboard: it loads a machine.toml
// roster, drives the timing service, and renders switch states, the tick
// counter, the latest raw accelerometer sample, and the deviation carried
// by the most recent tilt (level-limit) event as an operator console.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/tiltframe/pincore/accel"
	"github.com/tiltframe/pincore/config"
	"github.com/tiltframe/pincore/machine"
)

// Dashboard owns the screen and the wired machine it renders.
type Dashboard struct {
	screen      tcell.Screen
	width       int
	height      int
	machine     *machine.Machine
	switchNames []string

	lastLevel accel.LevelEvent
	hits      int
	tilts     int
}

func NewDashboard(m *machine.Machine, cfg *config.MachineConfig) (*Dashboard, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cfg.Switches))
	for _, def := range cfg.Switches {
		names = append(names, def.Name)
	}
	sort.Strings(names)

	d := &Dashboard{screen: screen, machine: m, switchNames: names}
	d.width, d.height = screen.Size()

	for _, th := range cfg.Accelerometer.HitLimits {
		event := th.Event
		m.Bus.AddHandler(event, func(any) { d.hits++ }, 0)
	}
	for _, th := range cfg.Accelerometer.LevelLimits {
		event := th.Event
		m.Bus.AddHandler(event, func(payload any) {
			d.tilts++
			if lv, ok := payload.(accel.LevelEvent); ok {
				d.lastLevel = lv
			}
		}, 0)
	}

	return d, nil
}

func (d *Dashboard) draw() {
	d.screen.Clear()
	style := tcell.StyleDefault

	row := 0
	d.writeLine(0, row, fmt.Sprintf("tick %d", d.machine.Tick.Now()), style.Bold(true))
	row++
	d.writeLine(0, row, fmt.Sprintf("hits %d  tilts %d", d.hits, d.tilts), style)
	row++

	latest := d.machine.Accel.Latest()
	d.writeLine(0, row, fmt.Sprintf("accel  x=%+.3f y=%+.3f z=%+.3f", latest.X, latest.Y, latest.Z), style)
	row++
	d.writeLine(0, row, fmt.Sprintf("tilt   total=%.1f deg  x=%.1f deg  y=%.1f deg",
		d.lastLevel.DeviationTotal*180/math.Pi,
		d.lastLevel.DeviationX*180/math.Pi,
		d.lastLevel.DeviationY*180/math.Pi), style)
	row += 2

	for _, name := range d.switchNames {
		sw, ok := d.machine.Switches.Switches(name)
		if !ok {
			continue
		}
		lineStyle := style
		label := "off"
		if sw.State == 1 {
			lineStyle = style.Foreground(tcell.ColorGreen).Bold(true)
			label = "ON "
		}
		d.writeLine(0, row, fmt.Sprintf("%-5s %-16s since tick %d", label, sw.Name, sw.LastChangeTick), lineStyle)
		row++
		if row >= d.height-1 {
			break
		}
	}

	d.screen.Show()
}

func (d *Dashboard) writeLine(x, y int, s string, style tcell.Style) {
	for i, r := range s {
		if x+i >= d.width {
			break
		}
		d.screen.SetContent(x+i, y, r, nil, style)
	}
}

func (d *Dashboard) handleResize() {
	d.width, d.height = d.screen.Size()
}

func (d *Dashboard) run(cfg *config.MachineConfig) {
	ticker := time.NewTicker(time.Second / time.Duration(cfg.HZ))
	defer ticker.Stop()
	redraw := time.NewTicker(100 * time.Millisecond)
	defer redraw.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			eventChan <- d.screen.PollEvent()
		}
	}()

	for {
		select {
		case ev := <-eventChan:
			switch e := ev.(type) {
			case *tcell.EventKey:
				if e.Key() == tcell.KeyEscape || e.Key() == tcell.KeyCtrlC ||
					(e.Key() == tcell.KeyRune && e.Rune() == 'q') {
					return
				}
			case *tcell.EventResize:
				d.handleResize()
			}
		case <-ticker.C:
			d.machine.Advance()
		case <-redraw.C:
			d.draw()
		}
	}
}

func (d *Dashboard) cleanup() {
	d.screen.Fini()
}

func main() {
	cfgPath := flag.String("config", "machine.toml", "path to machine.toml")
	flag.Parse()

	data, err := os.ReadFile(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadMachineConfig(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse config: %v\n", err)
		os.Exit(1)
	}

	m, err := machine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build machine: %v\n", err)
		os.Exit(1)
	}

	d, err := NewDashboard(m, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init screen: %v\n", err)
		os.Exit(1)
	}
	defer d.cleanup()

	d.run(cfg)
}
