// Package report renders the end-of-run summary of the simulator.
package report

import (
	"fmt"
	"sort"

	pongo2 "github.com/flosch/pongo2/v5"

	"gostep/core"
	"gostep/standalone"
	"gostep/standalone/config"
)

// Axis is one axis row of the summary
type Axis struct {
	Name     string
	Steps    int64
	Position float64 // units
	Emitted  int64   // steps seen by the emitter
}

// Event counts timing ring events of one kind
type Event struct {
	Name  string
	Count int
}

// Summary is the data rendered by a report template
type Summary struct {
	Session    string
	Kinematics string
	Regulator  string
	Sink       string
	State      string
	Error      string
	Stats      standalone.Stats
	Axes       []Axis
	Events     []Event
	Seconds    float64
}

// DefaultTemplate is used when no template is configured
const DefaultTemplate = `session {{ s.Session }}
kinematics={{ s.Kinematics }} regulator={{ s.Regulator }} sink={{ s.Sink }} state={{ s.State }}
{% if s.Error %}error: {{ s.Error }}
{% endif %}simulated {{ s.Seconds|floatformat:3 }}s, {{ s.Stats.Ticks }} ticks
movements {{ s.Stats.MovementsCompleted }} (micro {{ s.Stats.MicroMovements }}), rescales {{ s.Stats.Rescales }}, sealed {{ s.Stats.SealedBoundaries }}
forced decelerations {{ s.Stats.ForcedDecelerations }}, emergency stops {{ s.Stats.EmergencyStops }}
{% for a in s.Axes %}{{ a.Name|ljust:4 }} {{ a.Steps|rjust:9 }} steps {{ a.Position|floatformat:3|rjust:10 }}{% if a.Steps != a.Emitted %} MISMATCH emitter={{ a.Emitted }}{% endif %}
{% endfor %}{% if s.Events %}recent events:{% for e in s.Events %} {{ e.Name }}={{ e.Count }}{% endfor %}
{% endif %}`

// Renderer renders summaries with a compiled template
type Renderer struct {
	set *pongo2.TemplateSet
	tpl *pongo2.Template
}

// NewRenderer compiles tpl, or DefaultTemplate when tpl is empty
func NewRenderer(tpl string) (*Renderer, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	r := &Renderer{set: pongo2.NewSet("report", pongo2.DefaultLoader)}
	t, err := r.set.FromString(tpl)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	r.tpl = t
	return r, nil
}

// Render executes the template for s
func (r *Renderer) Render(s *Summary) (string, error) {
	out, err := r.tpl.Execute(pongo2.Context{"s": s})
	if err != nil {
		return "", fmt.Errorf("report: %w", err)
	}
	return out, nil
}

// Collect builds a summary from the orchestrator state. emitted may be nil
// when no emitter checked the stream.
func Collect(cfg *config.MachineConfig, orch *standalone.Orchestrator, emitted []int64) *Summary {
	s := &Summary{
		Kinematics: cfg.Kinematics,
		Regulator:  orch.Regulator().Name(),
		State:      orch.State().String(),
		Stats:      orch.Stats(),
		Seconds:    float64(core.GetTime()) / float64(core.TimerFreq),
	}
	if err := orch.LastError(); err != nil {
		s.Error = err.Error()
	}

	pos := orch.Position()
	for i, axis := range cfg.Axes {
		a := Axis{Name: axis.Name, Steps: int64(pos[i]), Position: float64(pos[i]) / axis.StepsPerUnit}
		if i < len(emitted) {
			a.Emitted = emitted[i]
		} else {
			a.Emitted = int64(pos[i])
		}
		s.Axes = append(s.Axes, a)
	}

	var events [core.TimingRingSize]core.TimingEvent
	n := core.TimingEvents(events[:])
	counts := make(map[string]int)
	for _, evt := range events[:n] {
		counts[core.EventName(evt.EventType)]++
	}
	for name, count := range counts {
		s.Events = append(s.Events, Event{Name: name, Count: count})
	}
	sort.Slice(s.Events, func(i, j int) bool { return s.Events[i].Name < s.Events[j].Name })
	return s
}
