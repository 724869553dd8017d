package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPath     = "path"
	KeySource   = "source"
	KeyDest     = "dest"
	KeyURL      = "url"
	KeyName     = "name"
	KeyRef      = "ref"
	KeyStage    = "stage"
	KeyStep     = "step"
	KeyRunID    = "run_id"
	KeyExitCode = "exit_code"
	KeyError    = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Path(p string) slog.Attr   { return slog.String(KeyPath, p) }
func Source(p string) slog.Attr { return slog.String(KeySource, p) }
func Dest(p string) slog.Attr   { return slog.String(KeyDest, p) }
func URL(u string) slog.Attr    { return slog.String(KeyURL, u) }
func Name(n string) slog.Attr   { return slog.String(KeyName, n) }
func Ref(r string) slog.Attr    { return slog.String(KeyRef, r) }
func Stage(s string) slog.Attr  { return slog.String(KeyStage, s) }
func Step(i int) slog.Attr      { return slog.Int(KeyStep, i) }
func RunID(id string) slog.Attr { return slog.String(KeyRunID, id) }
func ExitCode(c int) slog.Attr  { return slog.Int(KeyExitCode, c) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
