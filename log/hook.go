package log

import (
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

type stackHook struct{}

func (h *stackHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	if level < zerolog.ErrorLevel {
		return
	}

	arr := zerolog.Arr()
	for _, f := range frames(5) {
		arr.Dict(zerolog.Dict().
			Int("line", f.Line).
			Str("file", f.File).
			Str("function", f.Function),
		)
	}
	e.Array("stack", arr)
}

type frame struct {
	Line     int
	File     string
	Function string
}

// frames leaves out zerolog's own frames.
func frames(skip int) []frame {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return nil
	}

	it := runtime.CallersFrames(pcs[:n])
	out := make([]frame, 0, n)
	for {
		f, more := it.Next()
		if !strings.HasPrefix(f.Function, "github.com/rs/zerolog") {
			out = append(out, frame{Line: f.Line, File: f.File, Function: f.Function})
		}
		if !more {
			break
		}
	}

	return out
}
