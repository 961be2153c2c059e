package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/culling"
	"github.com/cornerculling/extension/internal/geometry"
	"github.com/cornerculling/extension/internal/logging"
	"github.com/cornerculling/extension/internal/mapfile"
)

func main() {
	app := makeapp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func makeapp() *cli.App {
	app := cli.NewApp()
	app.Name = "cullbench"
	app.Usage = "Replay culling scenarios against map occluder files"

	commonFlags := []cli.Flag{
		cli.StringFlag{Name: "maps", Value: "./maps", Usage: "Directory holding culling_<map>.txt files"},
		cli.StringFlag{Name: "config", Value: "", Usage: "Directory holding " + config.ConfigFileName + "; defaults are used when empty"},
		cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
	}

	app.Commands = []cli.Command{
		{
			Name:    "run",
			Aliases: []string{"r"},
			Usage:   "Run a scenario and print the visibility matrix and timings",
			Flags: append([]cli.Flag{
				cli.StringFlag{Name: "scenario", Usage: "Scenario YAML file; required"},
				cli.StringFlag{Name: "map", Usage: "Map name, overrides the scenario's"},
				cli.IntFlag{Name: "ticks", Usage: "Tick count, overrides the scenario's"},
				cli.BoolFlag{Name: "scalar", Usage: "Use the scalar blocking test"},
			}, commonFlags...),
			Action: runCommand,
		},
		{
			Name:    "inspect",
			Aliases: []string{"i"},
			Usage:   "Parse a map file and print its summary",
			Flags: append([]cli.Flag{
				cli.StringFlag{Name: "map", Usage: "Map name; required"},
			}, commonFlags...),
			Action: inspectCommand,
		},
	}
	return app
}

func setup(c *cli.Context) *mapfile.Loader {
	if dir := c.String("config"); dir != "" {
		if err := config.Load(dir); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
		}
	} else {
		config.LoadDefaults()
	}

	level := "warn"
	if c.Bool("debug") {
		level = "debug"
	}
	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, level, nil)
	return mapfile.NewLoader(slogManager.Logger(), c.String("maps"))
}

func runCommand(c *cli.Context) error {
	loader := setup(c)

	if c.String("scenario") == "" {
		return cli.NewExitError("--scenario is required", 2)
	}
	s, err := LoadScenario(c.String("scenario"))
	if err != nil {
		return err
	}
	if name := c.String("map"); name != "" {
		s.Map = name
	}
	if n := c.Int("ticks"); n > 0 {
		s.Ticks = n
	}

	m, err := loader.Load(s.Map)
	if err != nil {
		return err
	}

	cfg := s.ApplyCulling(config.GetCullingConfig())
	if c.Bool("scalar") {
		cfg.ScalarGeometry = true
	}

	res, err := Run(s, m, cfg)
	if err != nil {
		return err
	}
	WriteReport(os.Stdout, s, m, res)
	return nil
}

func inspectCommand(c *cli.Context) error {
	loader := setup(c)
	if c.String("map") == "" {
		return cli.NewExitError("--map is required", 2)
	}
	m, err := loader.Load(c.String("map"))
	if err != nil {
		return err
	}
	writeMapSummary(os.Stdout, m)
	return nil
}

// Result is the outcome of a scenario run
type Result struct {
	Ticks      int
	Elapsed    time.Duration
	Generation uint32
	Stats      culling.Stats
	Visible    []bool // row-major after the last tick
}

// Run installs the map and steps the scenario for its tick count
func Run(s *Scenario, m *mapfile.Map, cfg config.CullingConfig) (*Result, error) {
	ctrl, err := culling.New(cfg)
	if err != nil {
		return nil, err
	}
	engine := culling.NewEngine(ctrl)

	var spheres []geometry.Sphere
	if cfg.SphereOccluders {
		spheres = m.Spheres
	}
	res := &Result{
		Ticks:      s.Ticks,
		Generation: engine.InstallOccluders(m.Cuboids, spheres),
	}

	n := len(s.Characters)
	res.Visible = make([]bool, n*n)
	var chars []culling.Character

	start := time.Now()
	for tick := 0; tick < s.Ticks; tick++ {
		chars = s.Snapshots(tick, cfg.TickRate, chars)
		var out []bool
		if tick == s.Ticks-1 {
			out = res.Visible
		}
		if err := engine.Step(chars, out); err != nil {
			return nil, fmt.Errorf("tick %d: %w", tick, err)
		}
	}
	res.Elapsed = time.Since(start)
	res.Stats = engine.Stats()
	return res, nil
}

// WriteReport prints the visibility matrix and timings
func WriteReport(w io.Writer, s *Scenario, m *mapfile.Map, res *Result) {
	title := s.Name
	if title == "" {
		title = "scenario"
	}
	fmt.Fprintf(w, "%s on %s (%d ticks, %d characters)\n", title, m.Name, res.Ticks, len(s.Characters))
	if m.Placeholder {
		fmt.Fprintln(w, "warning: map file not found, placeholder occluder used")
	}
	fmt.Fprintln(w)

	n := len(s.Characters)
	width := 4
	for i := 0; i < n; i++ {
		width = max(width, len(s.Label(i))+1)
	}
	fmt.Fprintf(w, "%*s", width, "")
	for j := 0; j < n; j++ {
		fmt.Fprintf(w, "%*s", width, s.Label(j))
	}
	fmt.Fprintln(w)
	for i := 0; i < n; i++ {
		fmt.Fprintf(w, "%*s", width, s.Label(i))
		for j := 0; j < n; j++ {
			mark := "."
			if res.Visible[i*n+j] {
				mark = "X"
			}
			fmt.Fprintf(w, "%*s", width, mark)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	st := res.Stats
	fmt.Fprintf(w, "occluders:       %d (generation %d)\n", st.Occluders, res.Generation)
	fmt.Fprintf(w, "total:           %s\n", res.Elapsed)
	fmt.Fprintf(w, "overall average: %s\n", st.OverallAverage)
	fmt.Fprintf(w, "rolling average: %s\n", st.RollingAverage)
	fmt.Fprintf(w, "rolling max:     %s\n", st.RollingMax)
	fmt.Fprintf(w, "last tick:       bundles=%d cache=%d spheres=%d index=%d visible=%d\n",
		st.Last.Bundles, st.Last.CacheHits, st.Last.SphereHits, st.Last.IndexHits, st.Last.Visible)
}

func writeMapSummary(w io.Writer, m *mapfile.Map) {
	sum := m.Summary
	fmt.Fprintf(w, "map:         %s\n", m.Name)
	fmt.Fprintf(w, "path:        %s\n", m.Path)
	fmt.Fprintf(w, "placeholder: %t\n", m.Placeholder)
	fmt.Fprintf(w, "records:     cuboids=%d aabbs=%d faces=%d spheres=%d skipped=%d\n",
		sum.Cuboids, sum.AABBs, sum.FaceCuboids, sum.Spheres, sum.Skipped)
	if sum.Footprint.Hull.IsEmpty() {
		return
	}
	fmt.Fprintf(w, "footprint:   %.1f square units\n", sum.Footprint.Area)
	fmt.Fprintf(w, "extent:      (%.1f, %.1f) - (%.1f, %.1f)\n",
		sum.Footprint.Min.X, sum.Footprint.Min.Y, sum.Footprint.Max.X, sum.Footprint.Max.Y)
	fmt.Fprintf(w, "hull:        %s\n", strings.TrimSpace(sum.Footprint.WKT()))
}
