// Package version хранит метаданные сборки order store.
package version

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// Заполняются через -ldflags "-X github.com/vladislavdragonenkov/orderstore/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// readBuildInfo подменяется в тестах.
var readBuildInfo = debug.ReadBuildInfo

// Info описывает сборку; отдаётся на /version и пишется в стартовый лог.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Get возвращает метаданные сборки. Если ldflags не заданы, commit и дата
// берутся из VCS-настроек, которые go build вшивает в бинарник.
func Get() Info {
	info := Info{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = setting.Value
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = setting.Value
			}
		}
	}
	return info
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// Fields возвращает поля для стартового лога.
func Fields() log.Fields { return Get().Fields() }

// Fields возвращает поля logrus.
func (i Info) Fields() log.Fields {
	return log.Fields{
		"version":    i.Version,
		"commit":     i.Commit,
		"build_date": i.Date,
		"go_version": i.GoVersion,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("order-store %s (commit %s, built %s, %s)", i.Version, i.Commit, i.Date, i.GoVersion)
}

// Handler отдаёт Info в JSON.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Get())
	})
}
