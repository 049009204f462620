// Package version checks a program's `require kernel ">=X.Y.Z"` pragma
// against the minimum kernel floor each kernel-gated codegen feature
// needs, using the same semver library the teacher's package manager
// uses to resolve dependency version constraints.
package version

import (
	"strings"

	semver "github.com/Masterminds/semver/v3"

	kerrors "github.com/SiyuanSun0736/kernelscript/internal/errors"
	"github.com/SiyuanSun0736/kernelscript/internal/position"
)

// featureFloors names the minimum kernel version each gated kernelc
// construct requires, per SPEC_FULL.md §B.
var featureFloors = map[string]string{
	"ringbuf":          "5.8.0",
	"bpf_loop":         "5.17.0",
	"kfunc":            "5.13.0",
	"perf_event_array": "4.3.0",
}

// Pragma is a parsed `require kernel "<constraint>"` directive. Only the
// ">=X.Y.Z" form is supported; spec.md's surface syntax never writes
// anything richer for this pragma.
type Pragma struct {
	Min *semver.Version
	Raw string
}

// ParsePragma parses a kernel-version pragma value, anchored at the
// pragma's position for diagnostics.
func ParsePragma(value string, at position.Position) (*Pragma, *kerrors.E) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), ">=")
	v, err := semver.NewVersion(trimmed)
	if err != nil {
		return nil, kerrors.New(at, kerrors.KindParseError, "invalid kernel version constraint %q: %v", value, err)
	}
	return &Pragma{Min: v, Raw: value}, nil
}

// RequireFeature reports a VerifierWouldReject error if feature's kernel
// floor isn't covered by p. A nil Pragma means the program declared no
// kernel floor at all, which can never cover a gated feature.
func RequireFeature(p *Pragma, feature string, at position.Position) *kerrors.E {
	floorStr, ok := featureFloors[feature]
	if !ok {
		return nil
	}
	floor := semver.MustParse(floorStr)
	if p == nil {
		return kerrors.New(at, kerrors.KindVerifierWouldReject,
			"%s requires kernel >= %s; add `require kernel \">=%s\"`", feature, floorStr, floorStr)
	}
	if p.Min.LessThan(floor) {
		return kerrors.New(at, kerrors.KindVerifierWouldReject,
			"%s requires kernel >= %s, but program only declares >= %s", feature, floorStr, p.Min.String())
	}
	return nil
}
