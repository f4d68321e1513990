package driver

import (
	"fmt"
	"strings"
	"sync"

	"github.com/notargets/mzflow/comms"
	"github.com/notargets/mzflow/config"
	"github.com/notargets/mzflow/geometry"
)

// Runner is the lifecycle every driver variant exposes to the launcher.
type Runner interface {
	Setup() error
	Run() error
	Teardown()
}

// BuildZoneMesh instantiates the configured mesh generator for one zone.
func BuildZoneMesh(z *config.Zone) (*geometry.Mesh, error) {
	switch strings.ToLower(z.Mesh.Kind) {
	case "line":
		return geometry.NewLineMesh(z.Mesh.N, z.Mesh.Periodic), nil
	case "box":
		m := geometry.NewBoxMesh(z.Mesh.Nx, z.Mesh.Ny)
		if z.Mesh.PeriodicY != 0 {
			m.MakePeriodicY(z.Mesh.PeriodicY)
		}
		return m, nil
	case "su2":
		return geometry.ReadSU2Mesh(z.Mesh.File)
	}
	return nil, fmt.Errorf("driver: unknown mesh kind [%s]", z.Mesh.Kind)
}

// BuildHierarchies partitions every zone mesh across the rank count and
// builds the multigrid stacks. The result is shared read-only by all
// ranks.
func BuildHierarchies(cfg *config.Driver) (hierarchies []*geometry.Hierarchy, err error) {
	for _, z := range cfg.Zones {
		var m *geometry.Mesh
		if m, err = BuildZoneMesh(z); err != nil {
			return nil, err
		}
		m.ReorderRCM()
		hierarchies = append(hierarchies, geometry.BuildMGHierarchy(m, z.MGLevels, cfg.NRanks))
	}
	return
}

// SelectVariant picks the driver variant the configuration asks for.
func SelectVariant(cfg *config.Driver, hierarchies []*geometry.Hierarchy,
	comm *comms.Communicator) Runner {
	var anyAdjoint, anyTurbo bool
	for _, z := range cfg.Zones {
		anyAdjoint = anyAdjoint || z.SolverKind.IsAdjoint()
		anyTurbo = anyTurbo || z.Turbo.Enabled
	}
	switch {
	case cfg.FSI && anyAdjoint:
		return NewDiscAdjFSI(cfg, hierarchies, comm)
	case cfg.HarmonicBalance:
		return NewHarmonicBalance(cfg, hierarchies, comm)
	case anyTurbo:
		return NewTurbomachinery(cfg, hierarchies, comm)
	default:
		return New(cfg, hierarchies, comm)
	}
}

// RunProblem executes the whole configured problem: one goroutine per rank,
// each running the full setup/run/teardown lifecycle over its partition.
// The first error any rank reports wins.
func RunProblem(cfg *config.Driver) error {
	hierarchies, err := BuildHierarchies(cfg)
	if err != nil {
		return err
	}
	var (
		group  = comms.NewGroup(cfg.NRanks)
		wg     sync.WaitGroup
		mu     sync.Mutex
		runErr error
	)
	report := func(e error) {
		mu.Lock()
		if runErr == nil {
			runErr = e
		}
		mu.Unlock()
	}
	for rank := 0; rank < cfg.NRanks; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			r := SelectVariant(cfg, hierarchies, group[rank])
			if e := r.Setup(); e != nil {
				report(fmt.Errorf("rank %d: %w", rank, e))
				return
			}
			if e := r.Run(); e != nil {
				report(fmt.Errorf("rank %d: %w", rank, e))
			}
			r.Teardown()
		}(rank)
	}
	wg.Wait()
	return runErr
}
