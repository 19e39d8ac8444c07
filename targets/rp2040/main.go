//go:build rp2040 || rp2350

// Firmware that runs the motion core stand-alone: G-code lines arrive on
// USB, steps leave through the PIO blocks and tool power through PWM.
package main

import (
	"errors"
	"machine"
	"time"

	"gostep/core"
	"gostep/internal/log"
	"gostep/standalone"
	"gostep/standalone/config"
	"gostep/standalone/gcode"
	"gostep/standalone/motion"
)

// startDelay is how long the core waits for more input before stepping a
// partially filled queue
const startDelay = 100 * time.Millisecond

func main() {
	// clear any watchdog left armed by a previous image
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}
	initUSB()
	log.InitWriter("info", machine.Serial)
	core.SetDebugWriter(log.DebugWriter(log.L()))
	core.TimerInit()
	updateSystemTime()

	mgr, err := newManager()
	if err != nil {
		fail(err)
	}
	run(mgr)
}

func newManager() (*standalone.Manager, error) {
	cfg := config.DefaultCartesianConfig()

	steps, err := newStepSink(len(cfg.Axes))
	if err != nil {
		return nil, err
	}

	core.SetPWMDriver(&toolPWM{})
	pins := make([]core.PWMPin, len(cfg.Tools))
	maxPower := make([]float64, len(cfg.Tools))
	for i, tool := range cfg.Tools {
		pins[i] = core.PWMPin(tool.PWMPin)
		maxPower[i] = tool.MaxPower
	}
	tools, err := core.NewPWMToolSink(core.MustPWM(), pins, maxPower, core.TimerFreq/1000)
	if err != nil {
		return nil, err
	}

	return standalone.NewManagerWithConfig(cfg, standalone.Options{Sink: steps, Tools: tools})
}

// run is the main loop. One command is held while the queue is full; the
// core starts once the queue fills or the input goes quiet.
func run(mgr *standalone.Manager) {
	orch := mgr.Orchestrator()
	names := make([]string, len(mgr.Config().Axes))
	for i, axis := range mgr.Config().Axes {
		names[i] = axis.Name
	}
	interp := gcode.NewInterpreter(mgr, names)
	parser := gcode.NewParser()

	var (
		line     [96]byte
		n        int
		held     *gcode.Command
		lastByte = time.Now()
	)
	for {
		updateSystemTime()
		core.ProcessTimers()

		if held != nil {
			err := interp.Execute(held)
			switch {
			case err == nil:
				held = nil
				usbWrite("ok\n")
			case errors.Is(err, motion.ErrQueueFull), errors.Is(err, motion.ErrQueueLocked):
				startIdle(orch)
				continue
			default:
				held = nil
				usbWrite("error: " + err.Error() + "\n")
			}
		}

		for held == nil && machine.Serial.Buffered() > 0 {
			c, err := machine.Serial.ReadByte()
			if err != nil {
				break
			}
			lastByte = time.Now()
			if c != '\n' && c != '\r' {
				if n < len(line) {
					line[n] = c
					n++
				}
				continue
			}
			cmd, err := parser.ParseLine(string(line[:n]))
			n = 0
			if err != nil {
				usbWrite("error: " + err.Error() + "\n")
				continue
			}
			held = cmd
		}

		if held == nil && orch.QueueLen() > 0 && time.Since(lastByte) > startDelay {
			startIdle(orch)
		}
	}
}

func startIdle(orch *standalone.Orchestrator) {
	if orch.State() != standalone.StateIdle {
		return
	}
	if err := orch.Start(); err != nil {
		usbWrite("error: " + err.Error() + "\n")
	}
}

// fail blinks the LED forever
func fail(err error) {
	usbWrite("fatal: " + err.Error() + "\n")
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
