package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"gnssd/internal/forsense"
)

// Version is set at link time: -ldflags "-X gnssd/internal/web.Version=v1.2.3".
var Version string

type AboutResponse struct {
	Service    string   `json:"service"`
	NowUTC     string   `json:"now_utc"`
	GoVersion  string   `json:"go_version"`
	ModulePath string   `json:"module_path,omitempty"`
	Version    string   `json:"version,omitempty"`
	Commit     string   `json:"commit,omitempty"`
	Dirty      bool     `json:"dirty,omitempty"`
	BuildTime  string   `json:"build_time,omitempty"`
	FrameTypes []string `json:"frame_types"`
}

func buildInfo(now time.Time, bi *debug.BuildInfo) AboutResponse {
	resp := AboutResponse{
		Service:    "gnssd",
		NowUTC:     now.UTC().Format(time.RFC3339Nano),
		GoVersion:  runtime.Version(),
		Version:    Version,
		FrameTypes: forsense.FrameTypes(),
	}
	if bi == nil {
		return resp
	}
	resp.ModulePath = bi.Main.Path
	if resp.Version == "" && bi.Main.Version != "(devel)" {
		resp.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			resp.Commit = s.Value
		case "vcs.modified":
			resp.Dirty = s.Value == "true"
		case "vcs.time":
			resp.BuildTime = s.Value
		}
	}
	return resp
}

func AboutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		bi, _ := debug.ReadBuildInfo()
		writeJSON(w, buildInfo(time.Now(), bi))
	})
}
