/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo provides the version of the go-feedgate module the running binary is built from.
package libinfo

import (
	"debug/buildinfo"
	"regexp"
	"sync"

	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

const shortName = "go-feedgate"

const moduleName = "github.com/acronis/" + shortName

const unknownVersion = "v0.0.0"

// PrometheusVersionLabel is a constant label with the module version added to the exported metrics.
const PrometheusVersionLabel = "feedgate_version"

// AddPrometheusVersionLabel returns a copy of labels with the version label added.
func AddPrometheusVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusVersionLabel] = GetVersion()
	return labelsCopy
}

// UserAgent returns a value for the User-Agent header of outgoing requests.
func UserAgent() string {
	return shortName + "/" + GetVersion()
}

var version string
var versionOnce sync.Once

// GetVersion returns the module version or v0.0.0 when it's unknown (e.g. in development builds).
func GetVersion() string {
	versionOnce.Do(func() {
		if info, ok := debug.ReadBuildInfo(); ok {
			version = extractVersion(info, moduleName)
		}
		if version == "" {
			version = unknownVersion
		}
	})
	return version
}

// extractVersion looks for the module either as the main one (the gateway binary)
// or as a dependency in the form "modName" or "modName/vX".
func extractVersion(info *buildinfo.BuildInfo, modName string) string {
	if info == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if re.MatchString(info.Main.Path) && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	for _, dep := range info.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
