package main

import (
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/chget/chplus-dl/internal/model"
)

// progressPrinter renders download callback events as log lines, throttled
// to one line per ten percent so concurrent segment workers do not flood
// the output.
type progressPrinter struct {
	mu       sync.Mutex
	lastKey  string
	lastStep int
}

func newProgressPrinter() *progressPrinter {
	return &progressPrinter{lastStep: -1}
}

func (p *progressPrinter) update(u model.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := u.Code.String() + "/" + string(u.Stage)
	if key != p.lastKey {
		p.lastKey = key
		p.lastStep = -1
	}

	step := int(u.Fraction * 10)
	if step == p.lastStep {
		return
	}
	p.lastStep = step

	stage := strings.ToLower(string(u.Stage))
	switch u.Stage {
	case model.StageDone:
		log.Infof("%s: done", u.Title)
	case model.StageResolving, model.StageCleanup:
		log.Debugf("%s: %s", u.Title, stage)
	default:
		log.Infof("%s: %s %3.0f%%", u.Title, stage, u.Fraction*100)
	}
}
