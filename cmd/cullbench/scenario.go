package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/culling"
)

// ErrNoCharacters is returned for a scenario without characters
var ErrNoCharacters = errors.New("scenario has no characters")

// Scenario is a scripted roster replayed against a map
type Scenario struct {
	Name       string              `yaml:"name"`
	Map        string              `yaml:"map"`
	Ticks      int                 `yaml:"ticks"`
	Culling    CullingOverlay      `yaml:"culling"`
	Characters []ScenarioCharacter `yaml:"characters"`
}

// CullingOverlay holds the culling settings a scenario overrides, keyed
// like the config file
type CullingOverlay struct {
	MaxCharacters         *int     `yaml:"maxCharacters"`
	TickRate              *int     `yaml:"tickRate"`
	SimulatedLatencyTicks *int     `yaml:"simulatedLatencyTicks"`
	Period                *int     `yaml:"period"`
	TimerMax              *int     `yaml:"timerMax"`
	CacheSize             *int     `yaml:"cacheSize"`
	MaxSpeed              *float64 `yaml:"maxSpeed"`
	SpeedMargin           *float64 `yaml:"speedMargin"`
	VerticalDisplacement  *float64 `yaml:"verticalDisplacement"`
	ScalarGeometry        *bool    `yaml:"scalarGeometry"`
	SphereOccluders       *bool    `yaml:"sphereOccluders"`
}

// ScenarioCharacter is one roster slot. Velocity is applied to eye and
// base every tick, in units per second.
type ScenarioCharacter struct {
	Name     string      `yaml:"name"`
	Team     int         `yaml:"team"`
	Dead     bool        `yaml:"dead"`
	Eye      [3]float64  `yaml:"eye"`
	Base     *[3]float64 `yaml:"base"`
	Yaw      float64     `yaml:"yaw"`
	Pitch    float64     `yaml:"pitch"`
	Velocity [3]float64  `yaml:"velocity"`
}

// standing eye height used when a character has no explicit base
const eyeHeight = 64

// LoadScenario reads a scenario file
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening scenario: %w", err)
	}
	defer f.Close()
	return ParseScenario(f)
}

// ParseScenario decodes a scenario and fills in defaults
func ParseScenario(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("error decoding scenario: %w", err)
	}
	if len(s.Characters) == 0 {
		return nil, ErrNoCharacters
	}
	if s.Ticks <= 0 {
		s.Ticks = 120
	}
	return &s, nil
}

// ApplyCulling overlays the scenario's culling settings on cfg
func (s *Scenario) ApplyCulling(cfg config.CullingConfig) config.CullingConfig {
	o := s.Culling
	setIf(&cfg.MaxCharacters, o.MaxCharacters)
	setIf(&cfg.TickRate, o.TickRate)
	setIf(&cfg.SimulatedLatencyTicks, o.SimulatedLatencyTicks)
	setIf(&cfg.Period, o.Period)
	setIf(&cfg.TimerMax, o.TimerMax)
	setIf(&cfg.CacheSize, o.CacheSize)
	setIf(&cfg.MaxSpeed, o.MaxSpeed)
	setIf(&cfg.SpeedMargin, o.SpeedMargin)
	setIf(&cfg.VerticalDisplacement, o.VerticalDisplacement)
	setIf(&cfg.ScalarGeometry, o.ScalarGeometry)
	setIf(&cfg.SphereOccluders, o.SphereOccluders)
	if cfg.MaxCharacters < len(s.Characters) {
		cfg.MaxCharacters = len(s.Characters)
	}
	return cfg
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Snapshots returns the roster at the given tick
func (s *Scenario) Snapshots(tick, tickRate int, dst []culling.Character) []culling.Character {
	dt := 0.0
	if tickRate > 0 {
		dt = float64(tick) / float64(tickRate)
	}
	dst = dst[:0]
	for _, c := range s.Characters {
		eye := mgl64.Vec3(c.Eye)
		base := eye.Sub(mgl64.Vec3{0, 0, eyeHeight})
		if c.Base != nil {
			base = mgl64.Vec3(*c.Base)
		}
		v := mgl64.Vec3(c.Velocity)
		offset := v.Mul(dt)
		dst = append(dst, culling.Character{
			Team:  c.Team,
			Alive: !c.Dead,
			Eye:   eye.Add(offset),
			Base:  base.Add(offset),
			Yaw:   c.Yaw,
			Pitch: c.Pitch,
			Speed: v.Len(),
		})
	}
	return dst
}

// Label returns the name shown for slot i
func (s *Scenario) Label(i int) string {
	if name := s.Characters[i].Name; name != "" {
		return name
	}
	return fmt.Sprintf("#%d", i)
}
