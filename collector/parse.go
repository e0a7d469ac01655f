package collector

import (
	"fmt"
	"strings"

	"github.com/hluisi/pausemon/model"
	"github.com/hluisi/pausemon/util"
)

// topStats is the fixed stat list passed to top. command is last so that
// names containing spaces survive whitespace splitting.
var topStats = []string{"pid", "cpu", "state", "mem", "cmprs", "pageins", "csw", "sysbsd", "th", "command"}

// headerNames maps top's header tokens to stat names.
var headerNames = map[string]string{
	"PID":     "pid",
	"%CPU":    "cpu",
	"STATE":   "state",
	"MEM":     "mem",
	"CMPRS":   "cmprs",
	"PAGEINS": "pageins",
	"CSW":     "csw",
	"SYSBSD":  "sysbsd",
	"#TH":     "th",
	"COMMAND": "command",
}

// rawRecord is one parsed process row. Pageins, CSW and Syscalls are
// cumulative counters in logging mode; the source diffs them into rates.
type rawRecord struct {
	PID        int
	Command    string
	CPUPct     float64
	State      model.ProcState
	RSS        uint64
	Compressed uint64
	Pageins    uint64
	CSW        uint64
	Syscalls   uint64
	Threads    int
}

// block is one complete per-interval report from top.
type block struct {
	TotalProcs int
	Records    []rawRecord
}

type colIndex struct {
	pid, cpu, state, mem, cmprs, pageins, csw, sysbsd, th, command int
}

func newColIndex() colIndex {
	return colIndex{pid: -1, cpu: -1, state: -1, mem: -1, cmprs: -1, pageins: -1, csw: -1, sysbsd: -1, th: -1, command: -1}
}

func (c colIndex) complete() bool {
	return c.pid >= 0 && c.cpu >= 0 && c.state >= 0 && c.mem >= 0 &&
		c.cmprs >= 0 && c.pageins >= 0 && c.csw >= 0 && c.sysbsd >= 0 &&
		c.th >= 0 && c.command >= 0
}

// parseHeader maps a "PID %CPU STATE ..." row into column positions.
// COMMAND must be the last column; rows are whitespace-split and the tail
// is rejoined into the command name.
func parseHeader(line string) (colIndex, error) {
	idx := newColIndex()
	fields := strings.Fields(line)
	for i, f := range fields {
		switch headerNames[f] {
		case "pid":
			idx.pid = i
		case "cpu":
			idx.cpu = i
		case "state":
			idx.state = i
		case "mem":
			idx.mem = i
		case "cmprs":
			idx.cmprs = i
		case "pageins":
			idx.pageins = i
		case "csw":
			idx.csw = i
		case "sysbsd":
			idx.sysbsd = i
		case "th":
			idx.th = i
		case "command":
			idx.command = i
		}
	}
	if !idx.complete() {
		return idx, fmt.Errorf("header %q missing expected columns", line)
	}
	if idx.command != len(fields)-1 {
		return idx, fmt.Errorf("header %q: COMMAND must be the last column", line)
	}
	return idx, nil
}

func parseRow(idx colIndex, line string) (rawRecord, bool) {
	fields := strings.Fields(line)
	if len(fields) <= idx.command {
		return rawRecord{}, false
	}
	pid := util.ParseInt(fields[idx.pid])
	if pid <= 0 {
		return rawRecord{}, false
	}
	return rawRecord{
		PID:        pid,
		Command:    strings.Join(fields[idx.command:], " "),
		CPUPct:     util.ParseFloat64(fields[idx.cpu]),
		State:      model.ParseState(fields[idx.state]),
		RSS:        util.ParseMemBytes(fields[idx.mem]),
		Compressed: util.ParseMemBytes(fields[idx.cmprs]),
		Pageins:    util.ParseUint64(util.StripDelta(fields[idx.pageins])),
		CSW:        util.ParseUint64(util.StripDelta(fields[idx.csw])),
		Syscalls:   util.ParseUint64(util.StripDelta(fields[idx.sysbsd])),
		Threads:    util.ParseInt(fields[idx.th]),
	}, true
}

// parseProcessCount extracts the total from a
// "Processes: 423 total, 2 running, ..." summary line.
func parseProcessCount(line string) int {
	fields := strings.Fields(line)
	if len(fields) >= 3 && strings.HasPrefix(fields[2], "total") {
		return util.ParseInt(fields[1])
	}
	return 0
}

// parseBlock parses one complete logging-mode report: global summary
// lines, then a header row, then one row per process.
func parseBlock(lines []string) (block, error) {
	var b block
	idx := newColIndex()
	haveHeader := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "Processes:") {
			b.TotalProcs = parseProcessCount(trimmed)
			continue
		}
		if !haveHeader {
			if strings.HasPrefix(trimmed, "PID") {
				parsed, err := parseHeader(trimmed)
				if err != nil {
					return b, err
				}
				idx = parsed
				haveHeader = true
			}
			continue
		}
		if rec, ok := parseRow(idx, trimmed); ok {
			b.Records = append(b.Records, rec)
		}
	}
	if !haveHeader {
		return b, ErrNoHeader
	}
	if len(b.Records) == 0 {
		return b, ErrNoRows
	}
	return b, nil
}
