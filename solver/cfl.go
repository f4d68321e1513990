package solver

// AdaptCFL grows or shrinks the zone CFL number from the residual history:
// a decreasing RMS residual earns the up factor, an increasing one pays the
// down factor, clamped to the configured range. Every rank sees identical
// reduced norms, so the adapted CFL stays identical across ranks without a
// dedicated exchange.
func (b *Base) AdaptCFL() {
	if !b.Cfg.CFLAdapt || b.nNormSets < 2 {
		b.lastNorm = b.ResNorm[0]
		return
	}
	var (
		down, up = b.Cfg.CFLAdaptFactors[0], b.Cfg.CFLAdaptFactors[1]
		cfl      = b.Cfg.CFL
	)
	if b.ResNorm[0] <= b.lastNorm {
		cfl *= up
	} else {
		cfl *= down
	}
	if cfl < b.Cfg.CFLMin {
		cfl = b.Cfg.CFLMin
	}
	if cfl > b.Cfg.CFLMax {
		cfl = b.Cfg.CFLMax
	}
	b.Cfg.CFL = cfl
	b.lastNorm = b.ResNorm[0]
}
