package engine

import (
	"context"
	"errors"
	"testing"

	"attendance-verification-engine/internal/policy/domain"
)

type fakePolicyRepo struct {
	policies []*domain.Policy
	listErr  error
}

func (f *fakePolicyRepo) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	return nil, nil
}

func (f *fakePolicyRepo) ListEnabledForLecture(ctx context.Context, lectureID string) ([]*domain.Policy, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.policies, nil
}

func (f *fakePolicyRepo) Create(ctx context.Context, p *domain.Policy) error { return nil }
func (f *fakePolicyRepo) Update(ctx context.Context, p *domain.Policy) error { return nil }

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	e := NewOPAEvaluator(nil)
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() = %v, want nil", err)
	}
}

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	e := NewOPAEvaluator(&fakePolicyRepo{})

	base := OverrideInput{
		StudentID:     "stu-1",
		LectureID:     "lec-1",
		LectureActive: true,
		ApproverID:    "lect-9",
		ApproverRole:  "lecturer",
		Justification: "fingerprint reader broken",
	}

	tests := []struct {
		name       string
		mutate     func(*OverrideInput)
		wantAllow  bool
		wantReason string
	}{
		{
			name:       "complete request allowed",
			mutate:     func(in *OverrideInput) {},
			wantAllow:  true,
			wantReason: "allowed",
		},
		{
			name:       "missing justification denied",
			mutate:     func(in *OverrideInput) { in.Justification = "" },
			wantAllow:  false,
			wantReason: "missing_justification",
		},
		{
			name:       "self approval denied",
			mutate:     func(in *OverrideInput) { in.ApproverID = "stu-1" },
			wantAllow:  false,
			wantReason: "self_approval",
		},
		{
			name:       "approver role not permitted",
			mutate:     func(in *OverrideInput) { in.ApproverRole = "student" },
			wantAllow:  false,
			wantReason: "approver_not_permitted",
		},
		{
			name:       "admin approver allowed",
			mutate:     func(in *OverrideInput) { in.ApproverRole = "admin" },
			wantAllow:  true,
			wantReason: "allowed",
		},
		{
			name:       "inactive lecture denied",
			mutate:     func(in *OverrideInput) { in.LectureActive = false },
			wantAllow:  false,
			wantReason: "lecture_inactive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			got, err := e.EvaluateOverride(context.Background(), in)
			if err != nil {
				t.Fatalf("EvaluateOverride() error = %v", err)
			}
			if got.Allowed != tt.wantAllow {
				t.Errorf("Allowed = %v, want %v", got.Allowed, tt.wantAllow)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestOPAEvaluator_CustomLecturePolicy(t *testing.T) {
	// Custom policy for the lecture forbids every override.
	custom := `package attendance.override

default allow = false
default reason = "overrides_disabled_for_lecture"
`
	repo := &fakePolicyRepo{policies: []*domain.Policy{
		{ID: "pol-1", LectureID: "lec-1", Rules: custom, Enabled: true},
	}}
	e := NewOPAEvaluator(repo)

	got, err := e.EvaluateOverride(context.Background(), OverrideInput{
		StudentID:     "stu-1",
		LectureID:     "lec-1",
		LectureActive: true,
		ApproverID:    "lect-9",
		ApproverRole:  "lecturer",
		Justification: "documented",
	})
	if err != nil {
		t.Fatalf("EvaluateOverride() error = %v", err)
	}
	if got.Allowed {
		t.Error("Allowed = true, want false under lecture policy")
	}
	if got.Reason != "overrides_disabled_for_lecture" {
		t.Errorf("Reason = %q", got.Reason)
	}
}

func TestOPAEvaluator_RepoErrorFallsBackToDefault(t *testing.T) {
	e := NewOPAEvaluator(&fakePolicyRepo{listErr: errors.New("db down")})

	got, err := e.EvaluateOverride(context.Background(), OverrideInput{
		StudentID:     "stu-1",
		LectureID:     "lec-1",
		LectureActive: true,
		ApproverID:    "lect-9",
		ApproverRole:  "lecturer",
		Justification: "documented",
	})
	if err != nil {
		t.Fatalf("EvaluateOverride() error = %v", err)
	}
	if !got.Allowed {
		t.Errorf("Allowed = false, want true via default policy, reason %q", got.Reason)
	}
}

func TestOPAEvaluator_BrokenPolicyDenies(t *testing.T) {
	repo := &fakePolicyRepo{policies: []*domain.Policy{
		{ID: "pol-1", LectureID: "lec-1", Rules: "package attendance.override\nallow {", Enabled: true},
	}}
	e := NewOPAEvaluator(repo)

	got, err := e.EvaluateOverride(context.Background(), OverrideInput{
		StudentID: "stu-1", LectureID: "lec-1",
		LectureActive: true, ApproverID: "lect-9", ApproverRole: "lecturer", Justification: "documented",
	})
	if err == nil {
		t.Fatal("EvaluateOverride() error = nil, want compile error")
	}
	if got.Allowed {
		t.Error("Allowed = true on broken policy, want false")
	}
}
