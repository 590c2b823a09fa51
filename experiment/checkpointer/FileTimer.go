package checkpointer

import (
	"fmt"
	"time"
)

// timestampLayout formats checkpoint timestamps down to nanoseconds so
// that successive checkpoints map to distinct filenames
const timestampLayout = "2006-01-02-15:04:05.000000000"

// FileTimer returns a function which names each file with the
// wall-clock time at which the name was generated. The filename
// parameter is the full filename with its path, and the extension
// parameter determines the file extension. For example, a filename of
// "data" and an extension of ".bin" produce names like
// "data-2026-08-27-10:30:00.000000000.bin".
func FileTimer(filename, extension string) func() string {
	return func() string {
		stamp := time.Now().Format(timestampLayout)
		return fmt.Sprintf("%v-%v%v", filename, stamp, extension)
	}
}
