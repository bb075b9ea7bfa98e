package cross

import (
	"sync"
	"testing"

	"github.com/opensource-finance/merlin/internal/domain"
)

func frameSetFor(domainName string) *domain.FrameSet {
	f := domain.NewFrame(domainName, "main", []string{"v"}, map[string][]any{"v": {1.0}})
	return domain.NewFrameSet(domainName, []string{"main"}, map[string]*domain.Frame{"main": f})
}

func TestStorePutAndSnapshot(t *testing.T) {
	s := NewStore()
	s.Put(frameSetFor("cfo"), []domain.Outcome{{RuleID: "cfo-1", Status: domain.StatusPass}})
	s.Put(frameSetFor("chro"), nil)

	facts := s.Snapshot()
	if !facts.HasDomain("cfo") || !facts.HasDomain("chro") {
		t.Fatalf("domains = %v", s.Domains())
	}
	if _, ok := facts.Outcome("cfo", "cfo-1"); !ok {
		t.Error("cfo-1 outcome not in snapshot")
	}

	// later submission replaces the first
	s.Put(frameSetFor("cfo"), []domain.Outcome{{RuleID: "cfo-2", Status: domain.StatusFail}})
	facts = s.Snapshot()
	if _, ok := facts.Outcome("cfo", "cfo-1"); ok {
		t.Error("stale outcome survived resubmission")
	}
	if _, ok := facts.Outcome("cfo", "cfo-2"); !ok {
		t.Error("cfo-2 outcome missing after resubmission")
	}
}

func TestStoreConcurrentPut(t *testing.T) {
	s := NewStore()
	domains := []string{"cfo", "cmo", "coo", "chro", "cpo"}
	var wg sync.WaitGroup
	for _, name := range domains {
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			s.Put(frameSetFor(d), nil)
		}(name)
	}
	wg.Wait()
	if got := len(s.Domains()); got != 5 {
		t.Errorf("domains = %d, want 5", got)
	}
}
