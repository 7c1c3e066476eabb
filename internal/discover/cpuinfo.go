// File: internal/discover/cpuinfo.go
//
// Topology discovery by parsing /proc/cpuinfo.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package discover

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/internal/platform"
	"github.com/momentics/hioload-affinity/topology"
)

// Field slots of one cpuinfo record, least significant first. Node
// levels, when present, occupy nodeIdx+level and grow maxIndex.
const (
	osIdx     = 0
	threadIdx = 1
	coreIdx   = 2
	pkgIdx    = 3
	nodeIdx   = 4
)

// unsetField marks a field the file did not provide.
const unsetField = -1

type cpuinfoBackend struct{}

func (cpuinfoBackend) Name() string   { return "cpuinfo" }
func (cpuinfoBackend) Method() Method { return MethodCpuinfo }

func (cpuinfoBackend) Discover(ctx *Context) (*Result, error) {
	path := ctx.CpuinfoPath
	if path == "" {
		path = platform.ProcCpuinfoPath
	}
	ctx.diag().Infof("parsing %s", path)

	lines, err := readLines(ctx, path)
	if err != nil {
		return nil, err
	}

	// First pass: count processor records and find the deepest node
	// level, which fixes the per-record field width.
	numRecords := 0
	maxIndex := pkgIdx
	for _, line := range lines {
		if strings.HasPrefix(line, "processor") {
			numRecords++
			continue
		}
		if level, ok := parseNodeLevel(line, ctx.XProc); ok {
			if nodeIdx+level > maxIndex {
				maxIndex = nodeIdx + level
			}
		}
	}
	if numRecords == 0 {
		return nil, api.NewError(api.ErrCodeCpuinfoParse,
			"no processor records").WithContext("path", path)
	}
	if numRecords > ctx.XProc {
		return nil, api.NewError(api.ErrCodeCpuinfoParse,
			"more processor records than processors").
			WithContext("records", numRecords)
	}

	recs, err := parseRecords(ctx, lines, numRecords, maxIndex)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, api.NewError(api.ErrCodeCpuinfoParse,
			"no usable processor records")
	}

	// Linux may report -1 for physical_package_id (seen on powerpc).
	// Reconstruct packages from core_siblings_list before sorting.
	for i := range recs {
		if recs[i][pkgIdx] == unsetField {
			if !packageFromSiblings(ctx, recs, i) {
				return nil, api.NewError(api.ErrCodeCpuinfoMissingField,
					"physical id missing and not recoverable").
					WithContext("os_id", recs[i][osIdx])
			}
		}
	}

	// Sort by id fields, most significant (deepest node) first.
	sort.Slice(recs, func(a, b int) bool {
		for index := maxIndex; index >= osIdx; index-- {
			if recs[a][index] != recs[b][index] {
				return recs[a][index] < recs[b][index]
			}
		}
		return false
	})

	counts := make([]int, maxIndex+1)
	maxCt := make([]int, maxIndex+1)
	totals := make([]int, maxIndex+1)
	lastId := make([]int, maxIndex+1)

	// The thread id column may be absent. When the remaining columns
	// fail to distinguish two records the walk restarts once, assigning
	// synthetic thread ids; a second collision is a real duplicate.
	assignThreadIds := false
	for {
		restart, err := radixCheck(recs, maxIndex, assignThreadIds,
			counts, maxCt, totals, lastId)
		if err != nil {
			return nil, err
		}
		if !restart {
			break
		}
		assignThreadIds = true
	}
	for index := threadIdx; index <= maxIndex; index++ {
		if counts[index] > maxCt[index] {
			maxCt[index] = counts[index]
		}
	}

	g := Globals{
		NPackages:       totals[pkgIdx],
		NCoresPerPkg:    maxCt[coreIdx],
		NThreadsPerCore: maxCt[threadIdx],
		NCores:          totals[coreIdx],
	}
	if !ctx.Capable {
		return &Result{Globals: g, Method: MethodCpuinfo}, nil
	}

	// A level is in the map when it partitions its parent, with the
	// package, core and thread levels always included.
	inMap := make([]bool, maxIndex+1)
	for index := threadIdx; index < maxIndex; index++ {
		inMap[index] = totals[index] > totals[index+1]
	}
	inMap[maxIndex] = totals[maxIndex] > 1
	inMap[pkgIdx] = true
	inMap[coreIdx] = true
	inMap[threadIdx] = true

	// The deepest in-map node level becomes a NUMA layer above the
	// package; shallower node levels carry no extra partitioning worth
	// a layer of their own.
	numaIndex := -1
	for index := maxIndex; index > pkgIdx; index-- {
		if inMap[index] {
			numaIndex = index
			break
		}
	}

	var types []api.LevelType
	if numaIndex >= 0 {
		types = append(types, api.LevelNUMA)
	}
	types = append(types, api.LevelSocket, api.LevelCore, api.LevelThread)

	topo := topology.New(len(recs), types)
	for i := range recs {
		rec := topo.Record(i)
		rec.OSID = recs[i][osIdx]
		lvl := 0
		if numaIndex >= 0 {
			rec.IDs[lvl] = recs[i][numaIndex]
			lvl++
		}
		rec.IDs[lvl] = recs[i][pkgIdx]
		rec.IDs[lvl+1] = recs[i][coreIdx]
		rec.IDs[lvl+2] = recs[i][threadIdx]
	}
	topo.SortIDs()

	// Backfill thread ids the file omitted: restart at 0 whenever any
	// ancestor id changes, else continue from the previous record.
	tlevel := topo.LevelOf(api.LevelThread)
	if tlevel > 0 {
		if topo.Record(0).IDs[tlevel] == api.UnknownID {
			topo.Record(0).IDs[tlevel] = 0
		}
		for i := 1; i < topo.NumRecords(); i++ {
			rec := topo.Record(i)
			if rec.IDs[tlevel] != api.UnknownID {
				continue
			}
			prev := topo.Record(i - 1)
			for j := 0; j < tlevel; j++ {
				if rec.IDs[j] != prev.IDs[j] {
					rec.IDs[tlevel] = 0
					break
				}
			}
			if rec.IDs[tlevel] == api.UnknownID {
				rec.IDs[tlevel] = prev.IDs[tlevel] + 1
			}
		}
	}

	if !topo.CheckIDs() {
		return nil, api.NewError(api.ErrCodeCpuinfoParse,
			"physical ids are not unique")
	}
	return &Result{Topology: topo, Globals: g, Method: MethodCpuinfo}, nil
}

func readLines(ctx *Context, path string) ([]string, error) {
	f, err := ctx.FS.Open(path)
	if err != nil {
		return nil, api.NewError(api.ErrCodeCpuinfoParse,
			"cannot open cpuinfo").WithContext("path", path)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, api.NewError(api.ErrCodeCpuinfoParse,
			"read error").WithContext("cause", err.Error())
	}
	return lines, nil
}

// parseNodeLevel recognizes "node_<n> id" lines, clamping n to the
// processor count so a corrupt file cannot blow up the field width.
func parseNodeLevel(line string, xproc int) (int, bool) {
	if !strings.HasPrefix(line, "node_") {
		return 0, false
	}
	rest := line[len("node_"):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 || !strings.HasPrefix(rest[end:], " id") {
		return 0, false
	}
	level, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	if level > xproc {
		level = xproc
	}
	return level, true
}

// fieldValue extracts the integer after the colon of "name : value".
func fieldValue(line string) (int, error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return 0, fmt.Errorf("no value")
	}
	v := strings.TrimSpace(line[colon+1:])
	// Take the leading integer; some fields carry trailing text.
	end := 0
	if end < len(v) && v[end] == '-' {
		end++
	}
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	return strconv.Atoi(v[:end])
}

func parseRecords(ctx *Context, lines []string, numRecords, maxIndex int) ([][]int, error) {
	newRecord := func() []int {
		r := make([]int, maxIndex+1)
		for i := range r {
			r[i] = unsetField
		}
		return r
	}
	setField := func(rec []int, index int, line string) error {
		val, err := fieldValue(line)
		if err != nil {
			return api.NewError(api.ErrCodeCpuinfoMissingField,
				"field has no value").WithContext("line", line)
		}
		if rec[index] != unsetField {
			return api.NewError(api.ErrCodeCpuinfoDuplicateField,
				"field repeated within a record").WithContext("line", line)
		}
		// Kernels report -1 for ids they do not know; keep those unset
		// so the siblings-list reconstruction can fill them in.
		if val < 0 {
			val = unsetField
		}
		rec[index] = val
		return nil
	}

	recs := make([][]int, 0, numRecords)
	cur := newRecord()
	dirty := false
	flush := func() error {
		if !dirty {
			return nil
		}
		if cur[osIdx] == unsetField {
			return api.NewError(api.ErrCodeCpuinfoMissingField,
				"record without a processor field")
		}
		// Skip procs outside the machine model.
		if !ctx.Capable || ctx.FullMask.IsSet(cur[osIdx]) {
			if len(recs) == numRecords {
				return api.NewError(api.ErrCodeCpuinfoParse,
					"more records than the first pass counted")
			}
			recs = append(recs, cur)
			cur = newRecord()
		} else {
			for i := range cur {
				cur[i] = unsetField
			}
		}
		dirty = false
		return nil
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "processor"):
			if err := setField(cur, osIdx, line); err != nil {
				return nil, err
			}
			dirty = true
		case strings.HasPrefix(line, "physical id"):
			if err := setField(cur, pkgIdx, line); err != nil {
				return nil, err
			}
			dirty = true
		case strings.HasPrefix(line, "core id"):
			if err := setField(cur, coreIdx, line); err != nil {
				return nil, err
			}
			dirty = true
		case strings.HasPrefix(line, "thread id"):
			if err := setField(cur, threadIdx, line); err != nil {
				return nil, err
			}
			dirty = true
		case strings.TrimSpace(line) == "":
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			if level, ok := parseNodeLevel(line, ctx.XProc); ok {
				if err := setField(cur, nodeIdx+level, line); err != nil {
					return nil, err
				}
				dirty = true
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return recs, nil
}

// packageFromSiblings assigns package ids from core_siblings_list when
// the cpuinfo file left physical id unset. Every sibling of record idx
// gets idx as its package id; a sibling already claimed by a different
// package means the kernel data is inconsistent.
func packageFromSiblings(ctx *Context, recs [][]int, idx int) bool {
	if !ctx.Capable {
		return false
	}
	path := fmt.Sprintf(
		"/sys/devices/system/cpu/cpu%d/topology/core_siblings_list",
		recs[idx][osIdx])
	siblings, err := platform.ReadCPUList(ctx.FS, path)
	if err != nil || siblings.IsEmpty() {
		return false
	}
	for os := siblings.NextAfter(-1); os >= 0; os = siblings.NextAfter(os) {
		for j := range recs {
			if recs[j][osIdx] != os {
				continue
			}
			if recs[j][pkgIdx] != unsetField && recs[j][pkgIdx] != idx {
				return false
			}
			recs[j][pkgIdx] = idx
		}
	}
	return true
}

// radixCheck walks the sorted records determining the radix of every
// field. Returns restart=true when the id columns cannot distinguish
// two records and thread ids were never specified.
func radixCheck(recs [][]int, maxIndex int, assignThreadIds bool,
	counts, maxCt, totals, lastId []int) (bool, error) {

	threadIdCt := 0
	if assignThreadIds {
		if recs[0][threadIdx] == unsetField {
			recs[0][threadIdx] = threadIdCt
			threadIdCt++
		} else if threadIdCt <= recs[0][threadIdx] {
			threadIdCt = recs[0][threadIdx] + 1
		}
	}
	for index := 0; index <= maxIndex; index++ {
		counts[index] = 1
		maxCt[index] = 1
		totals[index] = 1
		lastId[index] = recs[0][index]
	}

	for i := 1; i < len(recs); i++ {
		index := maxIndex
		for ; index >= threadIdx; index-- {
			if assignThreadIds && index == threadIdx {
				if recs[i][threadIdx] == unsetField {
					recs[i][threadIdx] = threadIdCt
					threadIdCt++
				} else if threadIdCt <= recs[i][threadIdx] {
					threadIdCt = recs[i][threadIdx] + 1
				}
			}
			if recs[i][index] != lastId[index] {
				for index2 := threadIdx; index2 < index; index2++ {
					totals[index2]++
					if counts[index2] > maxCt[index2] {
						maxCt[index2] = counts[index2]
					}
					counts[index2] = 1
					lastId[index2] = recs[i][index2]
				}
				counts[index]++
				totals[index]++
				lastId[index] = recs[i][index]

				if assignThreadIds && index > threadIdx {
					// New core: restart the synthetic thread counter.
					threadIdCt = 0
					if recs[i][threadIdx] == unsetField {
						recs[i][threadIdx] = threadIdCt
						threadIdCt++
					} else if threadIdCt <= recs[i][threadIdx] {
						threadIdCt = recs[i][threadIdx] + 1
					}
				}
				break
			}
		}
		if index < threadIdx {
			if recs[i][threadIdx] != unsetField || assignThreadIds {
				return false, api.NewError(api.ErrCodeCpuinfoParse,
					"physical ids are not unique")
			}
			return true, nil
		}
	}
	return false, nil
}
