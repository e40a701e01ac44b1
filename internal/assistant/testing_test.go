package assistant

import (
	"io"

	"pkt.systems/pslog"
)

func discardLogger() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})
}
