package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// Version возвращает версию сборки для health-ответов.
func Version() string { return version }

func String() string {
	return fmt.Sprintf("sales-service version=%s commit=%s date=%s", version, commit, date)
}
