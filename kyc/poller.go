package kyc

import (
	"context"
	"sync"
	"time"

	"github.com/blnkfinance/vetflow/model"
	"github.com/sirupsen/logrus"
)

// Poller periodically re-checks document checks the providers have not settled yet.
type Poller struct {
	verifier *Verifier
	ds       DocumentDataSource
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPoller(verifier *Verifier, ds DocumentDataSource, interval time.Duration) *Poller {
	return &Poller{
		verifier: verifier,
		ds:       ds,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		logrus.Infof("KYC Poller started with interval: %v", p.interval)

		p.PollOnce(context.Background())

		for {
			select {
			case <-ticker.C:
				p.PollOnce(context.Background())
			case <-p.stopCh:
				logrus.Info("KYC Poller stopping...")
				return
			}
		}
	}()
}

func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	logrus.Info("KYC Poller stopped")
}

// PollOnce refreshes every submitted check and returns how many changed.
func (p *Poller) PollOnce(ctx context.Context) int {
	checks, err := p.ds.GetChecksByStatus(ctx, model.CheckStatusSubmitted)
	if err != nil {
		logrus.Errorf("Poller: failed to fetch submitted checks: %v", err)
		return 0
	}

	if len(checks) == 0 {
		logrus.Debug("Poller: no pending checks")
		return 0
	}

	logrus.Infof("Poller: checking %d pending checks", len(checks))

	changed := 0
	for _, check := range checks {
		if check.ProviderRef == "" {
			logrus.Warnf("Poller: check %s has no provider reference, skipping", check.CheckID)
			continue
		}
		updated, err := p.verifier.Refresh(ctx, check)
		if err != nil {
			logrus.Errorf("Poller: refresh failed for check %s (ref: %s): %v", check.CheckID, check.ProviderRef, err)
			continue
		}
		if updated {
			logrus.Infof("Poller: check %s moved to %s", check.CheckID, check.Status)
			changed++
		}
	}
	return changed
}
