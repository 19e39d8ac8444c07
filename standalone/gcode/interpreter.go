package gcode

import (
	"fmt"
	"math"
	"strings"

	"gostep/standalone/motion"
)

// Machine is the motion front end driven by the interpreter. Positions are
// high-level coordinates, one per configured axis.
type Machine interface {
	Line(target []float64, speed float64, tools motion.Signature) error
	Arc(center [2]float64, angle float64, to []float64, speed float64, tools motion.Signature) error
	Position() []float64
	SetPosition(pos []float64) error
}

// State is the modal state of the interpreter
type State struct {
	AbsoluteMode    bool             // G90/G91
	RelativeExtrude bool             // M83/M82
	FeedRate        float64          // units/s, 0 means the speed group limit
	Tools           motion.Signature // tools enabled by M3
}

// Interpreter executes G-code commands
type Interpreter struct {
	machine Machine
	state   State

	// axis index per parameter letter, -1 if not configured
	axes    [26]int
	extrude int
}

// NewInterpreter creates an interpreter for a machine whose axes are named
// in axisNames. Single-letter names map to the G-code words; "e" is the
// extruder.
func NewInterpreter(machine Machine, axisNames []string) *Interpreter {
	interp := &Interpreter{
		machine: machine,
		state:   State{AbsoluteMode: true},
		extrude: -1,
	}
	for i := range interp.axes {
		interp.axes[i] = -1
	}
	for i, name := range axisNames {
		if len(name) != 1 || !isLetter(name[0]) {
			continue
		}
		letter := toUpper(name[0])
		interp.axes[letter-'A'] = i
		if letter == 'E' {
			interp.extrude = i
		}
	}
	return interp
}

// Execute executes a parsed G-code command. Errors from the machine, such
// as a full movement queue, are returned unwrapped so the caller can retry
// the same command.
func (interp *Interpreter) Execute(cmd *Command) error {
	if cmd == nil {
		return nil
	}

	switch cmd.Type {
	case 'G':
		return interp.executeG(cmd)
	case 'M':
		return interp.executeM(cmd)
	case 'T':
		return nil
	}

	return nil
}

// executeG handles G-codes
func (interp *Interpreter) executeG(cmd *Command) error {
	switch cmd.Number {
	case 0: // G0 - Rapid move
		return interp.doMove(cmd, 0)
	case 1: // G1 - Linear move
		return interp.doMove(cmd, interp.feed(cmd))
	case 2, 3: // G2/G3 - Arc, clockwise/counter-clockwise
		return interp.doArc(cmd, cmd.Number == 2)
	case 28: // G28 - Return to origin
		return interp.doHome(cmd)
	case 90: // G90 - Absolute positioning
		interp.state.AbsoluteMode = true
	case 91: // G91 - Relative positioning
		interp.state.AbsoluteMode = false
	case 92: // G92 - Set position
		return interp.doSetPosition(cmd)
	default:
		return fmt.Errorf("gcode: unsupported G%d", cmd.Number)
	}

	return nil
}

// executeM handles M-codes
func (interp *Interpreter) executeM(cmd *Command) error {
	switch cmd.Number {
	case 3, 4: // M3/M4 - Tool on
		tool := int(cmd.GetParameter('T', 0))
		if tool < 0 || tool >= motion.MaxSteppers {
			return fmt.Errorf("gcode: tool %d out of range", tool)
		}
		interp.state.Tools = interp.state.Tools.Set(tool)
	case 5: // M5 - Tools off
		interp.state.Tools = 0
	case 82: // M82 - Absolute extrusion
		interp.state.RelativeExtrude = false
	case 83: // M83 - Relative extrusion
		interp.state.RelativeExtrude = true
	default:
		return fmt.Errorf("gcode: unsupported M%d", cmd.Number)
	}

	return nil
}

// feed updates the modal feed rate from F, given in units per minute
func (interp *Interpreter) feed(cmd *Command) float64 {
	if cmd.HasParameter('F') {
		interp.state.FeedRate = cmd.GetParameter('F', 0) / 60.0
	}
	return interp.state.FeedRate
}

// target resolves the axis words of cmd against the current position
func (interp *Interpreter) target(cmd *Command, current []float64) []float64 {
	target := append([]float64(nil), current...)
	for letter, value := range cmd.Parameters {
		if letter < 'A' || letter > 'Z' {
			continue
		}
		i := interp.axes[letter-'A']
		if i < 0 || i >= len(target) {
			continue
		}
		relative := !interp.state.AbsoluteMode
		if i == interp.extrude {
			relative = interp.state.RelativeExtrude
		}
		if relative {
			target[i] = current[i] + value
		} else {
			target[i] = value
		}
	}
	return target
}

// doMove executes a linear move (G0/G1)
func (interp *Interpreter) doMove(cmd *Command, speed float64) error {
	current := interp.machine.Position()
	target := interp.target(cmd, current)
	return interp.machine.Line(target, speed, interp.state.Tools)
}

// doArc executes an arc in the plane of the first two axes. I and J give
// the center relative to the start point; an end point equal to the start
// is a full circle.
func (interp *Interpreter) doArc(cmd *Command, clockwise bool) error {
	current := interp.machine.Position()
	if len(current) < 2 {
		return fmt.Errorf("gcode: arcs need two axes")
	}
	if !cmd.HasParameter('I') && !cmd.HasParameter('J') {
		return fmt.Errorf("gcode: G%d needs I or J", cmd.Number)
	}
	speed := interp.feed(cmd)
	target := interp.target(cmd, current)
	center := [2]float64{current[0] + cmd.GetParameter('I', 0), current[1] + cmd.GetParameter('J', 0)}

	start := math.Atan2(current[1]-center[1], current[0]-center[0])
	end := math.Atan2(target[1]-center[1], target[0]-center[0])
	angle := end - start
	if clockwise {
		if angle >= 0 {
			angle -= 2 * math.Pi
		}
	} else if angle <= 0 {
		angle += 2 * math.Pi
	}
	return interp.machine.Arc(center, angle, target, speed, interp.state.Tools)
}

// doHome moves the named axes, or all of them, rapidly to zero
func (interp *Interpreter) doHome(cmd *Command) error {
	current := interp.machine.Position()
	target := append([]float64(nil), current...)
	all := true
	for letter := range cmd.Parameters {
		if letter >= 'A' && letter <= 'Z' && interp.axes[letter-'A'] >= 0 {
			all = false
		}
	}
	for i := range target {
		if i == interp.extrude {
			continue
		}
		if all || interp.named(cmd, i) {
			target[i] = 0
		}
	}
	return interp.machine.Line(target, 0, 0)
}

func (interp *Interpreter) named(cmd *Command, axis int) bool {
	for letter := range cmd.Parameters {
		if letter >= 'A' && letter <= 'Z' && interp.axes[letter-'A'] == axis {
			return true
		}
	}
	return false
}

// doSetPosition redefines the current position (G92)
func (interp *Interpreter) doSetPosition(cmd *Command) error {
	current := interp.machine.Position()
	for letter, value := range cmd.Parameters {
		if letter < 'A' || letter > 'Z' {
			continue
		}
		if i := interp.axes[letter-'A']; i >= 0 && i < len(current) {
			current[i] = value
		}
	}
	return interp.machine.SetPosition(current)
}

// GetState returns the modal state
func (interp *Interpreter) GetState() State {
	return interp.state
}

// Run parses and executes a program line by line. retry is called with
// the error of a command the machine could not take yet, typically a full
// queue; the command is retried while retry returns true.
func Run(interp *Interpreter, program string, retry func(error) bool) error {
	parser := NewParser()
	for _, line := range strings.Split(program, "\n") {
		cmd, err := parser.ParseLine(line)
		if err != nil {
			return err
		}
		for {
			err = interp.Execute(cmd)
			if err == nil {
				break
			}
			if retry == nil || !retry(err) {
				return fmt.Errorf("gcode: line %d: %w", parser.Line(), err)
			}
		}
	}
	return nil
}
