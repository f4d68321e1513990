package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// RuntimeOverride carries the small set of options a user may change while a
// run is in flight. The file is re-read every Monitor call; a missing file
// leaves the current values in place.
type RuntimeOverride struct {
	CurrentIter int
	Stop        bool
}

// ReadRuntime parses a runtime override file of KEY= VALUE lines. Unknown
// keys are ignored so stale files from other tools do not abort a run.
func ReadRuntime(fileName string, ro *RuntimeOverride) (found bool) {
	f, err := os.Open(fileName)
	if err != nil {
		return false
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		switch strings.ToUpper(key) {
		case "ITER", "CURRENT_ITER":
			if n, err := strconv.Atoi(val); err == nil {
				ro.CurrentIter = n
			}
		case "STOP":
			ro.Stop = strings.EqualFold(val, "YES") || val == "1"
		}
	}
	return true
}
