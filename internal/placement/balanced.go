// File: internal/placement/balanced.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package placement

import (
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
	"github.com/momentics/hioload-affinity/topology"
)

// fineGrain reports whether the resolved granularity pins to single
// hardware threads on this machine.
func (r *Result) fineGrain(topo *topology.Topology) bool {
	switch r.Granularity {
	case api.LevelThread:
		return true
	case api.LevelCore:
		return topo.NumThreadsPerCore <= 1
	case api.LevelSocket:
		return topo.NumCoresPerPkg <= 1
	}
	return false
}

// BalancedMask computes the affinity mask for thread tid of a team of
// nthreads under the balanced policy. Threads spread evenly over cores
// while consecutive ids stay close. The topology must be the one
// BuildPlaces ran against, in canonical record order.
func (r *Result) BalancedMask(topo *topology.Topology, tid, nthreads int) *mask.Mask {
	avail := topo.NumRecords()
	fine := r.fineGrain(topo)
	out := mask.New()

	if topo.Uniform() {
		ncores := topo.NumCores
		nthPerCore := avail / ncores
		if topo.NumPackages > 1 && nthPerCore <= 1 {
			ncores = topo.NumPackages
			nthPerCore = avail / ncores
		}
		chunk := nthreads / ncores
		bigCores := nthreads % ncores
		bigNth := (chunk + 1) * bigCores
		var coreID, threadID int
		if tid < bigNth {
			coreID = tid / (chunk + 1)
			threadID = (tid % (chunk + 1)) % nthPerCore
		} else {
			coreID = (tid - bigCores) / chunk
			threadID = ((tid - bigCores) % chunk) % nthPerCore
		}
		if fine {
			out.Set(topo.Record(coreID*nthPerCore + threadID).OSID)
		} else {
			for i := 0; i < nthPerCore; i++ {
				out.Set(topo.Record(coreID*nthPerCore + i).OSID)
			}
		}
		return out
	}

	coreLevel := r.CoreLevel
	ncores := r.NCores
	nthPerCore := r.MaxProcPerCore

	switch {
	case nthreads == avail:
		if fine {
			out.Set(topo.Record(tid).OSID)
		} else {
			core := findCore(topo, tid, coreLevel)
			for i := 0; i < avail; i++ {
				if findCore(topo, i, coreLevel) == core {
					out.Set(topo.Record(i).OSID)
				}
			}
		}

	case nthreads <= ncores:
		// tid picks the tid-th core that still has threads in the mask.
		core := 0
		for i := 0; i < ncores; i++ {
			inMask := false
			for j := 0; j < nthPerCore; j++ {
				if r.ProcArr[i*nthPerCore+j] != -1 {
					inMask = true
					break
				}
			}
			if !inMask {
				continue
			}
			if tid == core {
				for j := 0; j < nthPerCore; j++ {
					if osID := r.ProcArr[i*nthPerCore+j]; osID != -1 {
						out.Set(osID)
						if fine {
							break
						}
					}
				}
				break
			}
			core++
		}

	default: // nthreads > ncores
		nprocAtCore := make([]int, ncores)
		ncoresWithX := make([]int, nthPerCore+1)
		ncoresWithXToMax := make([]int, nthPerCore+1)
		for i := 0; i < ncores; i++ {
			cnt := 0
			for j := 0; j < nthPerCore; j++ {
				if r.ProcArr[i*nthPerCore+j] != -1 {
					cnt++
				}
			}
			nprocAtCore[i] = cnt
			ncoresWithX[cnt]++
		}
		for i := 0; i <= nthPerCore; i++ {
			for j := i; j <= nthPerCore; j++ {
				ncoresWithXToMax[i] += ncoresWithX[j]
			}
		}

		// Distribute the team over the slot table: one sweep grants each
		// populated core its first thread, later sweeps stack extras.
		nproc := ncores * nthPerCore
		newarr := make([]int, nproc)
		nth := nthreads
		flag := false
		for nth > 0 {
			for j := 1; j <= nthPerCore; j++ {
				cnt := ncoresWithXToMax[j]
				for i := 0; i < ncores; i++ {
					if nprocAtCore[i] == 0 {
						continue
					}
					for k := 0; k < nthPerCore; k++ {
						if r.ProcArr[i*nthPerCore+k] == -1 {
							continue
						}
						if newarr[i*nthPerCore+k] == 0 {
							newarr[i*nthPerCore+k] = 1
							cnt--
							nth--
							break
						} else if flag {
							newarr[i*nthPerCore+k]++
							cnt--
							nth--
							break
						}
					}
					if cnt == 0 || nth == 0 {
						break
					}
				}
				if nth == 0 {
					break
				}
			}
			flag = true
		}

		sum := 0
		for i := 0; i < nproc; i++ {
			sum += newarr[i]
			if sum > tid {
				if fine {
					out.Set(r.ProcArr[i])
				} else {
					coreID := i / nthPerCore
					for j := 0; j < nthPerCore; j++ {
						if osID := r.ProcArr[coreID*nthPerCore+j]; osID != -1 {
							out.Set(osID)
						}
					}
				}
				break
			}
		}
	}
	return out
}
