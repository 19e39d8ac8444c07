//go:build rp2040 || rp2350

// Package pio turns the motion core's ticks into step pulses with the
// RP2040 PIO blocks, one state machine per axis.
package pio

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"gostep/core"
)

// Command word, shifted out LSB first:
//
//	Bit 0:     direction level
//	Bits 1-8:  pulse count, 0 waits out the window without stepping
//	Bits 9-31: delay cycles after each pulse
//
// One pulse costs delay+12 cycles and every command 5 more; a quiet
// window costs delay+7.
func buildStepperProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestPins, 1).Encode(), // 1: out pins, 1 (direction)
		asm.Out(rp2pio.OutDestX, 8).Encode(),    // 2: out x, 8 (pulse count)
		asm.Jmp(7, rp2pio.JmpXZero).Encode(),    // 3: jmp !x, wait
		asm.Jmp(5, rp2pio.JmpXNZeroDec).Encode(), // 4: jmp x--, pulse
		// pulse:
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // 5: set pins, 1 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 6: set pins, 0
		// wait:
		asm.Mov(rp2pio.MovDestY, rp2pio.MovSrcOSR).Encode(), // 7: mov y, osr
		asm.Jmp(8, rp2pio.JmpYNZeroDec).Encode(),            // 8: jmp y--, 8
		asm.Jmp(5, rp2pio.JmpXNZeroDec).Encode(),            // 9: jmp x--, pulse
		// .wrap
	}
}

const (
	stepperPIOOrigin = 0 // load at offset 0 for correct jump addresses

	pulseCycles   = 12
	commandCycles = 5
	quietCycles   = 7
	maxDelay      = 1<<23 - 1

	// The state machines run at the core timer rate, so one PIO cycle is
	// one timer tick: 125MHz / (10 + 107/256).
	clkDivInt  = 10
	clkDivFrac = 107
)

// ErrNoStateMachine is returned when both PIO blocks are fully claimed
var ErrNoStateMachine = errors.New("pio: no free state machine")

// AxisPins are the driver pins of one axis
type AxisPins struct {
	Step      machine.Pin
	Dir       machine.Pin
	InvertDir bool
}

type axis struct {
	pio       *rp2pio.PIO
	sm        rp2pio.StateMachine
	invertDir bool
	carry     uint32 // cycles lost to rounding in the previous window
}

// Sink implements core.StepSink with one PIO state machine per axis.
// Every axis receives a command for every tick, so the axes stay in
// lockstep even when some of them are idle.
type Sink struct {
	axes   [core.MaxSteppers]axis
	n      int
	offset [2]uint8
	loaded [2]bool
}

// NewSink claims a state machine for each axis and starts them
func NewSink(pins []AxisPins) (*Sink, error) {
	if len(pins) > core.MaxSteppers {
		return nil, errors.New("pio: too many axes")
	}
	s := &Sink{n: len(pins)}
	program := buildStepperProgram()
	for i, p := range pins {
		pioNum, smNum, ok := allocatePIO()
		if !ok {
			return nil, ErrNoStateMachine
		}
		hw := rp2pio.PIO0
		if pioNum == 1 {
			hw = rp2pio.PIO1
		}
		if !s.loaded[pioNum] {
			offset, err := hw.AddProgram(program, stepperPIOOrigin)
			if err != nil {
				return nil, err
			}
			s.offset[pioNum] = offset
			s.loaded[pioNum] = true
		}
		a := &s.axes[i]
		a.pio = hw
		a.sm = hw.StateMachine(smNum)
		a.invertDir = p.InvertDir
		a.sm.TryClaim()
		s.configure(a, p, s.offset[pioNum], len(program))
	}
	return s, nil
}

func (s *Sink) configure(a *axis, p AxisPins, offset uint8, size int) {
	p.Step.Configure(machine.PinConfig{Mode: a.pio.PinMode()})
	p.Dir.Configure(machine.PinConfig{Mode: a.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(p.Step, 1)
	cfg.SetOutPins(p.Dir, 1)
	// shift right, explicit pull
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(size)-1, offset)
	cfg.SetClkDivIntFrac(clkDivInt, clkDivFrac)

	// pin directions must be set after Init
	a.sm.Init(offset, cfg)
	a.sm.SetPindirsConsecutive(p.Step, 1, true)
	a.sm.SetPindirsConsecutive(p.Dir, 1, true)
	a.sm.SetPinsConsecutive(p.Step, 1, false)
	a.sm.SetPinsConsecutive(p.Dir, 1, a.invertDir)
	a.sm.SetEnabled(true)
}

// command spreads steps over a window of ticks cycles
func (a *axis) command(negative bool, steps uint8, ticks uint32) uint32 {
	window := ticks + a.carry
	var delay, used uint32
	if steps == 0 {
		if window > quietCycles {
			delay = window - quietCycles
		}
		used = delay + quietCycles
	} else {
		per := (window - commandCycles) / uint32(steps)
		if window > commandCycles && per > pulseCycles {
			delay = per - pulseCycles
		}
		if delay > maxDelay {
			delay = maxDelay
		}
		used = commandCycles + uint32(steps)*(delay+pulseCycles)
	}
	if delay > maxDelay {
		delay = maxDelay
		used = quietCycles + maxDelay
	}
	a.carry = 0
	if window > used {
		a.carry = window - used
	}

	level := negative != a.invertDir
	cmd := uint32(steps)<<1 | delay<<9
	if level {
		cmd |= 1
	}
	return cmd
}

// Emit implements core.StepSink
func (s *Sink) Emit(dir uint8, steps *[core.MaxSteppers]uint8, ticks uint32) {
	for i := 0; i < s.n; i++ {
		a := &s.axes[i]
		cmd := a.command(dir&(1<<uint(i)) != 0, steps[i], ticks)
		for a.sm.IsTxFIFOFull() {
			// the previous window is still running; brief
		}
		a.sm.TxPut(cmd)
	}
}

// Stop drops queued commands and restarts every state machine
func (s *Sink) Stop() {
	for i := 0; i < s.n; i++ {
		a := &s.axes[i]
		a.sm.SetEnabled(false)
		a.sm.ClearFIFOs()
		a.sm.Restart()
		a.sm.SetEnabled(true)
		a.carry = 0
	}
}

// GetName implements core.StepSink
func (s *Sink) GetName() string {
	return "PIO"
}

// GetInfo returns backend performance information
func (s *Sink) GetInfo() core.StepSinkInfo {
	return core.StepSinkInfo{
		Name:          s.GetName(),
		MaxStepRate:   800000, // 12MHz / 15 cycles
		MinPulseNs:    666,    // 8 cycles at 12MHz
		TypicalJitter: 84,     // one PIO cycle
	}
}
