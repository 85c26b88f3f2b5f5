// Command pinsim is a headless driver simulator: it loads a machine.toml
// roster, drives the timing service at its configured HZ, and accepts
// switch transitions typed on stdin ("name state", e.g. "flipper_l 1").
// On every "sw_*" tag event it plays a short synthesized chime through
// beep/speaker, standing in for the audio/light show player a real
// machine driver would hand these events to.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"github.com/tiltframe/pincore/config"
	"github.com/tiltframe/pincore/machine"
)

func main() {
	cfgPath := flag.String("config", "machine.toml", "path to machine.toml")
	debug := flag.Bool("debug", false, "enable logging to stderr")
	flag.Parse()

	if !*debug {
		log.SetOutput(io.Discard)
	}

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

	sr := beep.SampleRate(44100)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		log.Printf("speaker init failed, chimes disabled: %v", err)
	} else {
		seen := make(map[string]bool)
		for _, def := range cfg.Switches {
			for _, tag := range def.Tags {
				event := "sw_" + tag
				if seen[event] {
					continue
				}
				seen[event] = true
				m.Bus.AddHandler(event, func(any) {
					speaker.Play(chime(sr))
				}, 0)
			}
		}
	}

	ticker := time.NewTicker(time.Second / time.Duration(cfg.HZ))
	defer ticker.Stop()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Printf("pinsim: %d switches registered, %d HZ\n", len(cfg.Switches), cfg.HZ)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			name, raw, ok := parseLine(line)
			if !ok {
				fmt.Fprintf(os.Stderr, "usage: <switch_name> <0|1>\n")
				continue
			}
			if err := m.Switches.ProcessSwitch(name, raw, false); err != nil {
				log.Printf("process_switch(%s, %d): %v", name, raw, err)
			}
		case <-ticker.C:
			m.Advance()
		}
	}
}

func parseLine(line string) (string, int, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", 0, false
	}
	raw, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, false
	}
	return fields[0], raw, true
}

// chime is a short 880Hz tone; the simulator has no sample assets of its
// own, so tag events get a synthesized tone rather than a sound file.
func chime(sr beep.SampleRate) beep.Streamer {
	tone, err := generators.SineTone(sr, 880)
	if err != nil {
		return beep.Silence(0)
	}
	return beep.Take(sr.N(80*time.Millisecond), tone)
}
