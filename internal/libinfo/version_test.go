/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package libinfo

import (
	"debug/buildinfo"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name      string
		buildInfo *buildinfo.BuildInfo
		want      string
	}{
		{
			name:      "main module",
			buildInfo: &buildinfo.BuildInfo{Main: debug.Module{Path: moduleName, Version: "v1.2.3"}},
			want:      "v1.2.3",
		},
		{
			name:      "development build of main module",
			buildInfo: &buildinfo.BuildInfo{Main: debug.Module{Path: moduleName, Version: "(devel)"}},
			want:      "",
		},
		{
			name: "dependency, v2",
			buildInfo: &buildinfo.BuildInfo{
				Main: debug.Module{Path: "github.com/other/app"},
				Deps: []*debug.Module{{Path: moduleName + "/v2", Version: "v2.0.1"}},
			},
			want: "v2.0.1",
		},
		{
			name: "not found",
			buildInfo: &buildinfo.BuildInfo{
				Deps: []*debug.Module{{Path: moduleName + "-extra", Version: "v1.0.0"}},
			},
			want: "",
		},
		{name: "nil build info", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, extractVersion(tt.buildInfo, moduleName))
		})
	}
}

func TestUserAgent(t *testing.T) {
	require.True(t, strings.HasPrefix(UserAgent(), "go-feedgate/v"))
	require.NotEmpty(t, GetVersion())
}

func TestAddPrometheusVersionLabel(t *testing.T) {
	src := prometheus.Labels{"instance": "a"}
	got := AddPrometheusVersionLabel(src)
	require.Equal(t, prometheus.Labels{"instance": "a", PrometheusVersionLabel: GetVersion()}, got)
	require.Len(t, src, 1)
}
