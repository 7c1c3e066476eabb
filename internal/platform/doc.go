// Package platform
// Author: momentics <momentics@gmail.com>
//
// Thin per-OS wrappers around the thread affinity syscalls, raw CPUID
// access, and the sysfs pseudo-files discovery consumes. Everything
// here implements an api interface; no policy lives in this package.
package platform
