//go:build !windows

package window

import (
	"errors"
	"log"
	"sort"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrUnsupported is returned by platform calls that need a Windows desktop.
var ErrUnsupported = errors.New("window: desktop window lookup requires windows")

// ProcessLocator reports whether the target process runs but cannot resolve a
// window for it outside Windows.
type ProcessLocator struct{}

func NewLocator() *ProcessLocator { return &ProcessLocator{} }

func (ProcessLocator) Locate(sig Signature) (Info, bool, error) {
	procs, err := process.Processes()
	if err != nil {
		return Info{}, false, err
	}
	pids := make([]int32, 0)
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if _, ok := Match(Signature{Process: sig.Process}, []Candidate{{ExePath: name, Visible: true}}); ok {
			pids = append(pids, p.Pid)
		}
	}
	if len(pids) > 0 {
		sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
		log.Printf("window: %s running as pid %d but window lookup is unsupported here", sig.Process, pids[0])
	}
	return Info{}, false, nil
}

func Foreground() (string, error) {
	return "", ErrUnsupported
}
