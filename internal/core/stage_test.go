package core

import (
	"testing"
)

func TestAllStages_FixedOrder(t *testing.T) {
	want := []Stage{
		StageSourceCollection,
		StageLanguageDetection,
		StageASTParsing,
		StageStaticAnalysis,
		StageRuleParsing,
		StageCategorization,
		StageNormalization,
		StageAIEnhancement,
	}

	got := AllStages()
	if len(got) != len(want) {
		t.Fatalf("AllStages() len = %d, want %d", len(got), len(want))
	}
	for i, s := range want {
		if got[i] != s {
			t.Errorf("AllStages()[%d] = %s, want %s", i, got[i], s)
		}
		if StageOrder(s) != i {
			t.Errorf("StageOrder(%s) = %d, want %d", s, StageOrder(s), i)
		}
	}
}

func TestStage_Required(t *testing.T) {
	for _, s := range AllStages() {
		want := s != StageAIEnhancement
		if s.Required() != want {
			t.Errorf("%s.Required() = %v, want %v", s, s.Required(), want)
		}
	}
}

func TestParseStage(t *testing.T) {
	if _, err := ParseStage("static_analysis"); err != nil {
		t.Errorf("ParseStage(static_analysis) error = %v", err)
	}
	if _, err := ParseStage("bogus"); err == nil {
		t.Error("ParseStage(bogus) should fail")
	}
}

func TestStageRecord_Lifecycle(t *testing.T) {
	r := NewStageRecord(StageASTParsing)
	if r.Status != StageStatusPending || r.Progress != 0 {
		t.Fatalf("new record = %s/%d, want pending/0", r.Status, r.Progress)
	}

	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if r.Status != StageStatusRunning || r.StartedAt == nil {
		t.Errorf("after Start: status=%s startedAt=%v", r.Status, r.StartedAt)
	}

	r.SetProgress(50, "halfway")
	if r.Progress != 50 || r.Message != "halfway" {
		t.Errorf("SetProgress: progress=%d message=%q", r.Progress, r.Message)
	}

	if err := r.Complete("done"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if r.Status != StageStatusCompleted || r.Progress != 100 {
		t.Errorf("after Complete: status=%s progress=%d", r.Status, r.Progress)
	}
}

func TestStageRecord_Monotonic(t *testing.T) {
	r := NewStageRecord(StageNormalization)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if err := r.Complete("ok"); err != nil {
		t.Fatal(err)
	}

	// Terminal states never regress.
	if err := r.Start(); err == nil {
		t.Error("Start() on completed record should fail")
	}
	if err := r.Fail("late failure"); err == nil {
		t.Error("Fail() on completed record should fail")
	}
	r.SetProgress(10, "ignored")
	if r.Progress != 100 {
		t.Errorf("progress regressed to %d after terminal state", r.Progress)
	}
}

func TestStageRecord_FailFromPending(t *testing.T) {
	// A stage skipped due to an upstream abort may be failed without
	// ever running.
	r := NewStageRecord(StageRuleParsing)
	if err := r.Fail("aborted upstream"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if r.Status != StageStatusFailed {
		t.Errorf("status = %s, want failed", r.Status)
	}
}

func TestStageRecord_SetProgressClamps(t *testing.T) {
	r := NewStageRecord(StageStaticAnalysis)
	_ = r.Start()

	r.SetProgress(150, "")
	if r.Progress != 100 {
		t.Errorf("progress = %d, want 100", r.Progress)
	}
	r.SetProgress(-5, "")
	if r.Progress != 0 {
		t.Errorf("progress = %d, want 0", r.Progress)
	}
}
