// File: fake/fs.go
//
// In-memory proc filesystem.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"fmt"
	"io"
	"strings"

	"github.com/momentics/hioload-affinity/api"
)

// FS serves pseudo-file contents from a map, keyed by path.
type FS map[string]string

// Open implements api.ProcFS.
func (f FS) Open(path string) (io.ReadCloser, error) {
	content, ok := f[path]
	if !ok {
		return nil, api.NewError(api.ErrCodeNotSupported,
			"no such fixture file").WithContext("path", path)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

// CpuinfoText renders a /proc/cpuinfo fixture for a uniform machine.
// Thread ids are deliberately omitted, as on real x86 kernels.
func CpuinfoText(packages, coresPerPkg, threadsPerCore int) string {
	var sb strings.Builder
	cpu := 0
	for t := 0; t < threadsPerCore; t++ {
		for p := 0; p < packages; p++ {
			for c := 0; c < coresPerPkg; c++ {
				fmt.Fprintf(&sb, "processor\t: %d\n", cpu)
				sb.WriteString("vendor_id\t: GenuineIntel\n")
				fmt.Fprintf(&sb, "physical id\t: %d\n", p)
				fmt.Fprintf(&sb, "core id\t\t: %d\n", c)
				sb.WriteString("\n")
				cpu++
			}
		}
	}
	return sb.String()
}
