package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"gostep/core"
	"gostep/host/report"
	"gostep/host/serial"
	"gostep/host/stepsink"
	"gostep/internal/log"
	"gostep/standalone"
	"gostep/standalone/config"
	"gostep/standalone/gcode"
	"gostep/standalone/motion"
)

var (
	configFile = flag.String("config", "", "Machine configuration (JSON); default Cartesian machine when empty")
	program    = flag.String("gcode", "", "G-code file to run; built-in demo when empty")
	strategy   = flag.String("regulator", "", "Override the speed regulator (core1, core2)")
	device     = flag.String("device", "", "Serial device of an external step emitter; in-memory loopback when empty")
	baud       = flag.Int("baud", 921600, "Baud rate (ignored for USB CDC)")
	logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	tplFile    = flag.String("report", "", "Report template (pongo2); built-in summary when empty")
	timeout    = flag.Float64("timeout", 120, "Simulated seconds before the run is aborted (at most 170)")
)

const demoProgram = `; square with a rounded corner, then a spiral of short segments
G90
G1 X20 Y0 F6000
G1 X20 Y10
G3 X10 Y20 I-10 J0
G1 X0 Y20 E1.5
G1 X0 Y0 F1200
M3 T0
G91
G1 X1 Y0.5
G1 X1 Y0.6
G1 X1 Y0.7
G1 X1 Y0.8
M5
G90
G28
`

func main() {
	flag.Parse()
	log.Init(*logLevel)
	core.SetDebugWriter(log.DebugWriter(log.With("component", "timing")))

	if err := run(); err != nil {
		log.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	source := demoProgram
	if *program != "" {
		data, err := os.ReadFile(*program)
		if err != nil {
			return err
		}
		source = string(data)
	}
	renderer, err := newRenderer()
	if err != nil {
		return err
	}

	var port serial.Port
	if *device == "" {
		port = serial.NewLoopback()
	} else {
		c := serial.DefaultConfig(*device)
		c.Baud = *baud
		if port, err = serial.Open(c); err != nil {
			return err
		}
	}
	defer port.Close()

	session := uuid.New()
	sink, err := stepsink.NewSerialSink(port, len(cfg.Axes), session)
	if err != nil {
		return err
	}

	core.ResetTimers()
	core.SetTime(0)
	core.ClearTimingRing()

	pwm := newSimPWM()
	core.SetPWMDriver(pwm)
	pins := make([]core.PWMPin, len(cfg.Tools))
	maxPower := make([]float64, len(cfg.Tools))
	for i, tool := range cfg.Tools {
		pins[i] = core.PWMPin(tool.PWMPin)
		maxPower[i] = tool.MaxPower
	}
	tools, err := core.NewPWMToolSink(core.MustPWM(), pins, maxPower, core.TimerFreq/1000)
	if err != nil {
		return err
	}

	mgr, err := standalone.NewManagerWithConfig(cfg, standalone.Options{
		Sink:   sink,
		Tools:  tools,
		Logger: log.With("session", session.String()),
	})
	if err != nil {
		return err
	}
	orch := mgr.Orchestrator()
	names := make([]string, len(cfg.Axes))
	for i, axis := range cfg.Axes {
		names[i] = axis.Name
	}

	var emitter *stepsink.Emitter
	loopback, _ := port.(*serial.Loopback)
	if loopback != nil {
		emitter = stepsink.NewEmitter()
	}
	drain := func() error {
		if emitter == nil {
			return nil
		}
		return emitter.Drain(loopback)
	}

	// the 32-bit clock compares correctly up to half its range
	seconds := min(*timeout, 170)
	deadline := core.GetTime() + uint32(seconds*core.TimerFreq)
	advance := func(until uint32) error {
		core.RunUntil(until, func() bool { return orch.State() == standalone.StateIdle })
		if err := sink.Err(); err != nil {
			orch.EmergencyStop(err)
			return err
		}
		return drain()
	}

	log.Info("running", "axes", names, "regulator", cfg.Regulator, "sink", sink.GetName())
	interp := gcode.NewInterpreter(mgr, names)
	err = gcode.Run(interp, source, func(err error) bool {
		if !errors.Is(err, motion.ErrQueueFull) && !errors.Is(err, motion.ErrQueueLocked) {
			return false
		}
		if orch.State() == standalone.StateIdle {
			if orch.Start() != nil {
				return false
			}
		}
		now := core.GetTime()
		if int32(deadline-now) <= 0 {
			return false
		}
		return advance(now+core.TimerFreq/100) == nil
	})
	if err != nil {
		return err
	}

	if err := orch.Start(); err != nil {
		return err
	}
	if err := advance(deadline); err != nil {
		return err
	}
	if orch.State() != standalone.StateIdle {
		orch.EmergencyStop(errors.New("simulation timeout"))
	}
	if err := sink.Flush(); err != nil {
		return err
	}
	if err := drain(); err != nil {
		return err
	}

	var emitted []int64
	if emitter != nil {
		if emitter.Session != session {
			return fmt.Errorf("emitter saw session %s, sent %s", emitter.Session, session)
		}
		emitted = emitter.Position[:len(cfg.Axes)]
	}
	summary := report.Collect(cfg, orch, emitted)
	for i, tool := range cfg.Tools {
		log.Info("tool", "name", tool.Name, "peak_duty", pwm.peak[pins[i]], "final_duty", pwm.duty[pins[i]])
	}
	summary.Session = session.String()
	summary.Sink = sink.GetName()

	out, err := renderer.Render(summary)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(os.Stdout, out); err != nil {
		return err
	}
	return orch.LastError()
}

func loadConfig() (*config.MachineConfig, error) {
	var cfg *config.MachineConfig
	if *configFile == "" {
		cfg = config.DefaultCartesianConfig()
	} else {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, err
		}
		if cfg, err = config.LoadConfig(data); err != nil {
			return nil, err
		}
	}
	if *strategy != "" {
		cfg.Regulator = *strategy
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newRenderer() (*report.Renderer, error) {
	if *tplFile == "" {
		return report.NewRenderer("")
	}
	data, err := os.ReadFile(*tplFile)
	if err != nil {
		return nil, err
	}
	return report.NewRenderer(string(data))
}
