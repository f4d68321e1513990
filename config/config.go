package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/ghodss/yaml"
)

// PeriodicMarker defines one face of a periodic boundary pair together with
// the rigid transform relating it to its partner face. Angles are Euler
// angles in degrees about x, then y, then z.
type PeriodicMarker struct {
	Name        string     `yaml:"Name"`
	Donor       string     `yaml:"Donor"`
	Center      [3]float64 `yaml:"Center"`
	Angles      [3]float64 `yaml:"Angles"`
	Translation [3]float64 `yaml:"Translation"`
}

// MarkerSet names the boundary markers a zone attaches physics to.
type MarkerSet struct {
	Wall      []string         `yaml:"Wall"`
	Farfield  []string         `yaml:"Farfield"`
	Inlet     []string         `yaml:"Inlet"`
	Outlet    []string         `yaml:"Outlet"`
	Interface []string         `yaml:"Interface"`
	Periodic  []PeriodicMarker `yaml:"Periodic"`
}

// RampSpec describes a linear ramp of a quantity over outer iterations:
// value(k) = Initial + k*(Final-Initial)/FinalIter for k <= FinalIter,
// then exactly Final.
type RampSpec struct {
	Enabled   bool    `yaml:"Enabled"`
	Initial   float64 `yaml:"Initial"`
	Final     float64 `yaml:"Final"`
	FinalIter int     `yaml:"FinalIter"`
}

// Value returns the ramped quantity at outer iteration k.
func (r *RampSpec) Value(k int) float64 {
	if !r.Enabled || k >= r.FinalIter {
		return r.Final
	}
	return r.Initial + float64(k)*(r.Final-r.Initial)/float64(r.FinalIter)
}

// HarmonicBalanceSpec configures the time-spectral method for a zone.
type HarmonicBalanceSpec struct {
	TimeInstances int       `yaml:"TimeInstances"`
	Period        float64   `yaml:"Period"`
	Frequencies   []float64 `yaml:"Frequencies"`
	Precondition  bool      `yaml:"Precondition"`
}

// TurboSpec configures turbomachinery coupling for a zone.
type TurboSpec struct {
	Enabled      bool     `yaml:"Enabled"`
	RotationRamp RampSpec `yaml:"RotationRamp"`
	OutletRamp   RampSpec `yaml:"OutletRamp"`
	NSpanSection int      `yaml:"NSpanSection"`
}

// MeshSpec selects one of the built-in mesh generators for a zone. External
// mesh formats plug in at the same point through the geometry package.
type MeshSpec struct {
	Kind      string  `yaml:"Kind"` // "line", "box", or "su2"
	File      string  `yaml:"File"` // mesh file for the "su2" kind
	N         int     `yaml:"N"`
	Nx        int     `yaml:"Nx"`
	Ny        int     `yaml:"Ny"`
	Periodic  bool    `yaml:"Periodic"`
	PeriodicY float64 `yaml:"PeriodicY"` // box translation pairing y-extremes, 0 disables
}

// InletProfileSpec configures file-based inlet initialization.
type InletProfileSpec struct {
	File      string  `yaml:"File"`
	Tolerance float64 `yaml:"Tolerance"`
}

// Zone holds the complete configuration of one zone as parsed from its
// YAML deck.
type Zone struct {
	Title             string              `yaml:"Title"`
	Solver            string              `yaml:"Solver"`
	TurbModel         string              `yaml:"TurbModel"`
	Transition        bool                `yaml:"Transition"`
	WeaklyCoupledHeat bool                `yaml:"WeaklyCoupledHeat"`
	Radiation         bool                `yaml:"Radiation"`
	DeformingMesh     bool                `yaml:"DeformingMesh"`
	RotatingFrame     bool                `yaml:"RotatingFrame"`
	RotationRate      [3]float64          `yaml:"RotationRate"`
	TranslationRate   [3]float64          `yaml:"TranslationRate"`
	Scheme            string              `yaml:"Scheme"`
	Gradient          string              `yaml:"Gradient"`
	Limiter           string              `yaml:"Limiter"`
	VenkatKappa       float64             `yaml:"VenkatKappa"`
	MGLevels          int                 `yaml:"MGLevels"`
	CFL               float64             `yaml:"CFL"`
	CFLAdapt          bool                `yaml:"CFLAdapt"`
	CFLAdaptFactors   [2]float64          `yaml:"CFLAdaptFactors"` // down, up
	CFLMin            float64             `yaml:"CFLMin"`
	CFLMax            float64             `yaml:"CFLMax"`
	InnerIter         int                 `yaml:"InnerIter"`
	ConvTol           float64             `yaml:"ConvTol"` // log10 residual threshold
	Implicit          bool                `yaml:"Implicit"`
	Restart           bool                `yaml:"Restart"`
	RestartFile       string              `yaml:"RestartFile"`
	RestartBinary     bool                `yaml:"RestartBinary"`
	Mesh              MeshSpec            `yaml:"Mesh"`
	InletProfile      InletProfileSpec    `yaml:"InletProfile"`
	Markers           MarkerSet           `yaml:"Markers"`
	Turbo             TurboSpec           `yaml:"Turbo"`
	HB                HarmonicBalanceSpec `yaml:"HB"`
	AdjointIterations map[string]int      `yaml:"AdjointIterations"` // per recording kind
	ObjectiveFunction string              `yaml:"ObjectiveFunction"`

	// Derived fields, populated by Finalize
	SolverKind   SolverKind       `yaml:"-"`
	Turbulence   TurbulenceModel  `yaml:"-"`
	SchemeKind   ConvectiveScheme `yaml:"-"`
	GradientKind GradientMethod   `yaml:"-"`
	LimiterKind  LimiterKind      `yaml:"-"`
}

func (z *Zone) Parse(data []byte) (err error) {
	if err = yaml.Unmarshal(data, z); err != nil {
		return
	}
	z.Finalize()
	return
}

// Finalize resolves the string-valued deck entries into enums and applies
// defaults. Called once after Parse; idempotent.
func (z *Zone) Finalize() {
	z.SolverKind = NewSolverKind(z.Solver)
	z.Turbulence = NewTurbulenceModel(z.TurbModel)
	z.SchemeKind = NewConvectiveScheme(z.Scheme)
	z.GradientKind = NewGradientMethod(z.Gradient)
	z.LimiterKind = NewLimiterKind(z.Limiter)
	if z.CFL == 0 {
		z.CFL = 1.0
	}
	if z.CFLAdaptFactors == [2]float64{} {
		z.CFLAdaptFactors = [2]float64{0.5, 1.1}
	}
	if z.CFLMin == 0 {
		z.CFLMin = 0.1
	}
	if z.CFLMax == 0 {
		z.CFLMax = 1.e4
	}
	if z.VenkatKappa == 0 {
		z.VenkatKappa = 0.05
	}
	if z.InnerIter == 0 {
		z.InnerIter = 1
	}
	if z.ConvTol == 0 {
		z.ConvTol = -8
	}
	if z.HB.TimeInstances == 0 {
		z.HB.TimeInstances = 1
	}
	if z.Mesh.Kind == "" {
		z.Mesh.Kind = "line"
	}
	if z.Mesh.N == 0 {
		z.Mesh.N = 32
	}
	if z.Mesh.Nx == 0 {
		z.Mesh.Nx = 8
	}
	if z.Mesh.Ny == 0 {
		z.Mesh.Ny = 8
	}
	if z.InletProfile.Tolerance == 0 {
		z.InletProfile.Tolerance = 1.e-6
	}
}

// NInstances returns the number of time-spectral instances of the zone.
func (z *Zone) NInstances() int {
	return z.HB.TimeInstances
}

// Driver holds the problem-level configuration plus all zone decks.
type Driver struct {
	Title           string   `yaml:"Title"`
	ZoneFiles       []string `yaml:"ZoneFiles"`
	Zones           []*Zone  `yaml:"Zones"`
	NRanks          int      `yaml:"NRanks"`
	NThreads        int      `yaml:"NThreads"`
	TimeDomain      bool     `yaml:"TimeDomain"`
	TimeStep        float64  `yaml:"TimeStep"`
	OuterIter       int      `yaml:"OuterIter"`
	FSI             bool     `yaml:"FSI"`
	HarmonicBalance bool     `yaml:"HarmonicBalance"`
	DryRun          bool     `yaml:"DryRun"`
	RuntimeFile     string   `yaml:"RuntimeFile"`
	BGSRelTol       float64  `yaml:"BGSRelTol"`
	BGSAbsTol       float64  `yaml:"BGSAbsTol"`
}

func (dc *Driver) Parse(data []byte) (err error) {
	if err = yaml.Unmarshal(data, dc); err != nil {
		return
	}
	return dc.Finalize()
}

// Finalize loads external zone decks, applies defaults, and resolves enums
// in every zone.
func (dc *Driver) Finalize() (err error) {
	for _, fileName := range dc.ZoneFiles {
		var data []byte
		if data, err = os.ReadFile(fileName); err != nil {
			return fmt.Errorf("driver config: reading zone deck %s: %w", fileName, err)
		}
		z := &Zone{}
		if err = z.Parse(data); err != nil {
			return fmt.Errorf("driver config: parsing zone deck %s: %w", fileName, err)
		}
		dc.Zones = append(dc.Zones, z)
	}
	if len(dc.Zones) == 0 {
		return fmt.Errorf("driver config: no zones defined")
	}
	for _, z := range dc.Zones {
		z.Finalize()
	}
	if dc.OuterIter == 0 {
		dc.OuterIter = 1
	}
	if dc.NRanks == 0 {
		dc.NRanks = 1
	}
	if dc.NThreads == 0 {
		dc.NThreads = 1
	}
	if dc.RuntimeFile == "" {
		dc.RuntimeFile = "runtime.dat"
	}
	if dc.BGSRelTol == 0 {
		dc.BGSRelTol = 1.e-3
	}
	if dc.BGSAbsTol == 0 {
		dc.BGSAbsTol = 1.e-8
	}
	return
}

func (dc *Driver) NZones() int {
	return len(dc.Zones)
}

func (dc *Driver) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", dc.Title)
	fmt.Printf("%d\t\t\t= Zones\n", dc.NZones())
	fmt.Printf("%d\t\t\t= Ranks\n", dc.NRanks)
	fmt.Printf("%d\t\t\t= Outer Iterations\n", dc.OuterIter)
	fmt.Printf("[%v]\t\t= Time Domain\n", dc.TimeDomain)
	names := make([]string, dc.NZones())
	for i, z := range dc.Zones {
		names[i] = fmt.Sprintf("%d:%s", i, z.SolverKind.Print())
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("Zone[%s]\n", n)
	}
}
