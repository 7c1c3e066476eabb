// Package api
// Author: momentics <momentics@gmail.com>
//
// Public contracts of the hioload-affinity library: topology level
// identifiers, core attributes, placement policy configuration, the
// hardware primitive interfaces implemented per platform, and the
// structured error model shared by every package.
//
// Nothing in this package touches the operating system. Implementations
// live under internal/platform and fake/.
package api
