// File: internal/platform/sysfs.go
//
// Readers for the kernel cpu pseudo-files used by discovery.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/mask"
)

// Well known pseudo-file paths.
const (
	ProcCpuinfoPath  = "/proc/cpuinfo"
	OfflineCPUsPath  = "/sys/devices/system/cpu/offline"
	PossibleCPUsPath = "/sys/devices/system/cpu/possible"
)

// HostFS implements api.ProcFS over the real filesystem.
type HostFS struct{}

func (HostFS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// ParseCPUList parses the kernel list format ("0-3,7,9-11") into a
// mask. An empty or blank string yields an empty mask.
func ParseCPUList(s string) (*mask.Mask, error) {
	m := mask.New()
	s = strings.TrimSpace(s)
	if s == "" {
		return m, nil
	}
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		var lo, hi int
		var err error
		if dash := strings.IndexByte(tok, '-'); dash > 0 {
			lo, err = strconv.Atoi(tok[:dash])
			if err == nil {
				hi, err = strconv.Atoi(tok[dash+1:])
			}
		} else {
			lo, err = strconv.Atoi(tok)
			hi = lo
		}
		if err != nil || lo < 0 || hi < lo {
			return nil, api.NewError(api.ErrCodeInvalidArgument, "bad cpu list token").
				WithContext("token", tok)
		}
		for i := lo; i <= hi; i++ {
			m.Set(i)
		}
	}
	return m, nil
}

// ReadCPUList reads one kernel cpu list pseudo-file. A missing file
// yields an empty mask, matching kernels that omit the file when no
// cpu qualifies.
func ReadCPUList(fs api.ProcFS, path string) (*mask.Mask, error) {
	f, err := fs.Open(path)
	if err != nil {
		return mask.New(), nil
	}
	defer f.Close()
	r := bufio.NewReader(f)
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	return ParseCPUList(line)
}

// OfflineCPUs returns the mask of offline processors.
func OfflineCPUs(fs api.ProcFS) *mask.Mask {
	m, err := ReadCPUList(fs, OfflineCPUsPath)
	if err != nil {
		return mask.New()
	}
	return m
}

// PossibleCPUs returns the mask of processor ids the kernel can ever
// bring online, empty when the pseudo-file is absent.
func PossibleCPUs(fs api.ProcFS) *mask.Mask {
	m, err := ReadCPUList(fs, PossibleCPUsPath)
	if err != nil {
		return mask.New()
	}
	return m
}
