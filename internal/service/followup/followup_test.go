package followup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/service/campaign"
)

// stubRepo serves exactly the repository calls the follow-up service
// makes: parent lookup, parent recipients, completed-follow-up check and
// child creation.
type stubRepo struct {
	campaign.Repository

	parent        *domain.Campaign
	recipients    []domain.CampaignRecipient
	priorFollowup *domain.Campaign
	created       *domain.Campaign
	createdInputs []campaign.RecipientInput
}

func (s *stubRepo) Get(_ context.Context, userID, id string) (*domain.Campaign, error) {
	if s.parent != nil && s.parent.ID == id && s.parent.UserID == userID {
		cp := *s.parent
		return &cp, nil
	}
	return nil, campaign.ErrNotFound
}

func (s *stubRepo) ListRecipients(_ context.Context, _ string) ([]domain.CampaignRecipient, error) {
	return s.recipients, nil
}

func (s *stubRepo) FindCompletedFollowup(_ context.Context, _ string) (*domain.Campaign, error) {
	return s.priorFollowup, nil
}

func (s *stubRepo) Create(_ context.Context, c *domain.Campaign, recipients []campaign.RecipientInput) error {
	s.created = c
	s.createdInputs = recipients
	return nil
}

func sentRecipient(id, email, accountID string, position int) domain.CampaignRecipient {
	r := domain.CampaignRecipient{
		ID:       id,
		Email:    email,
		Position: position,
		Status:   domain.RecipientSent,
	}
	if accountID != "" {
		r.AccountID = &accountID
	}
	return r
}

func completedParent(age time.Duration) *domain.Campaign {
	created := time.Now().UTC().Add(-age)
	return &domain.Campaign{
		ID:             "p1",
		UserID:         "u1",
		Name:           "launch",
		Status:         domain.CampaignCompleted,
		SendType:       domain.SendImmediate,
		Subjects:       []string{"Quick question", "Following up"},
		BodyHTML:       "<p>Original pitch</p>",
		FromAccountIDs: []string{"a1", "a2"},
		CreatedAt:      created,
	}
}

func TestCheckEligibilityGates(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*stubRepo)
		wantReason string
	}{
		{
			"eligible",
			func(r *stubRepo) {},
			"",
		},
		{
			"parent is a follow-up",
			func(r *stubRepo) {
				parentID := "p0"
				r.parent.SendType = domain.SendFollowup
				r.parent.ParentCampaignID = &parentID
			},
			ErrParentIsFollowup.Error(),
		},
		{
			"parent not completed",
			func(r *stubRepo) { r.parent.Status = domain.CampaignSending },
			ErrParentNotCompleted.Error(),
		},
		{
			"already followed up",
			func(r *stubRepo) {
				r.priorFollowup = &domain.Campaign{ID: "f1", Status: domain.CampaignCompleted}
			},
			ErrAlreadyFollowedUp.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{parent: completedParent(48 * time.Hour)}
			tt.setup(repo)

			elig, _, err := NewService(repo).CheckEligibility(context.Background(), "u1", "p1")
			if err != nil {
				t.Fatalf("CheckEligibility() error: %v", err)
			}
			if elig.Eligible != (tt.wantReason == "") {
				t.Errorf("eligible = %v, reason %q", elig.Eligible, elig.Reason)
			}
			if elig.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", elig.Reason, tt.wantReason)
			}
		})
	}
}

func TestCheckEligibilityMinimumAge(t *testing.T) {
	repo := &stubRepo{parent: completedParent(23 * time.Hour)}
	elig, _, err := NewService(repo).CheckEligibility(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatalf("CheckEligibility() error: %v", err)
	}
	if elig.Eligible {
		t.Error("parent 23h old passed the 24h gate")
	}

	repo = &stubRepo{parent: completedParent(25 * time.Hour)}
	elig, _, err = NewService(repo).CheckEligibility(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatalf("CheckEligibility() error: %v", err)
	}
	if !elig.Eligible {
		t.Errorf("parent 25h old blocked: %s", elig.Reason)
	}
}

func TestCreateReplaysParentSenderAssignments(t *testing.T) {
	repo := &stubRepo{
		parent: completedParent(48 * time.Hour),
		recipients: []domain.CampaignRecipient{
			sentRecipient("r0", "x@lead.io", "a1", 0),
			sentRecipient("r1", "y@lead.io", "a2", 1),
			sentRecipient("r2", "z@lead.io", "a1", 2),
		},
	}

	child, err := NewService(repo).Create(context.Background(), "u1", CreateInput{
		ParentID:  "p1",
		PitchHTML: "<p>Just floating this back up.</p>",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if child.SendType != domain.SendFollowup {
		t.Errorf("send_type = %s, want followup", child.SendType)
	}
	if child.ParentCampaignID == nil || *child.ParentCampaignID != "p1" {
		t.Error("parent_campaign_id not set")
	}
	if child.ScheduledAt == nil {
		t.Error("follow-up not stamped due-now")
	}

	// Each recipient keeps the account that originally contacted it.
	want := map[string]string{"x@lead.io": "a1", "y@lead.io": "a2", "z@lead.io": "a1"}
	if len(repo.createdInputs) != len(want) {
		t.Fatalf("created %d recipients, want %d", len(repo.createdInputs), len(want))
	}
	for _, in := range repo.createdInputs {
		if want[in.Email] != in.AccountID {
			t.Errorf("recipient %s pinned to %s, want %s", in.Email, in.AccountID, want[in.Email])
		}
	}
}

func TestCreateFallsBackToPositionalRotation(t *testing.T) {
	// Parent recipients were never assigned (legacy rows); the map falls
	// back to position mod pool, matching what dispatch would have done.
	repo := &stubRepo{
		parent: completedParent(48 * time.Hour),
		recipients: []domain.CampaignRecipient{
			sentRecipient("r0", "x@lead.io", "", 0),
			sentRecipient("r1", "y@lead.io", "", 1),
			sentRecipient("r2", "z@lead.io", "", 2),
		},
	}

	_, err := NewService(repo).Create(context.Background(), "u1", CreateInput{
		ParentID:  "p1",
		PitchHTML: "<p>Bump.</p>",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	want := map[string]string{"x@lead.io": "a1", "y@lead.io": "a2", "z@lead.io": "a1"}
	for _, in := range repo.createdInputs {
		if want[in.Email] != in.AccountID {
			t.Errorf("recipient %s pinned to %s, want %s", in.Email, in.AccountID, want[in.Email])
		}
	}
}

func TestCreateQuotesParentBody(t *testing.T) {
	repo := &stubRepo{
		parent:     completedParent(48 * time.Hour),
		recipients: []domain.CampaignRecipient{sentRecipient("r0", "x@lead.io", "a1", 0)},
	}

	child, err := NewService(repo).Create(context.Background(), "u1", CreateInput{
		ParentID:  "p1",
		PitchHTML: "<p>New pitch</p>",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if !strings.HasPrefix(child.BodyHTML, "<p>New pitch</p>") {
		t.Error("pitch not placed above the quote")
	}
	if !strings.Contains(child.BodyHTML, "<blockquote") || !strings.Contains(child.BodyHTML, "Original pitch") {
		t.Error("parent body not quoted")
	}
	for _, subject := range child.Subjects {
		if !strings.HasPrefix(subject, "Re: ") {
			t.Errorf("subject %q missing Re: prefix", subject)
		}
	}
}

func TestCreateRejectsEmptyPitch(t *testing.T) {
	repo := &stubRepo{
		parent:     completedParent(48 * time.Hour),
		recipients: []domain.CampaignRecipient{sentRecipient("r0", "x@lead.io", "a1", 0)},
	}

	for _, pitch := range []string{"", "   ", "<p>&nbsp;</p>", "<div><br/></div>"} {
		_, err := NewService(repo).Create(context.Background(), "u1", CreateInput{
			ParentID:  "p1",
			PitchHTML: pitch,
		})
		if !errors.Is(err, ErrEmptyPitch) {
			t.Errorf("Create(pitch=%q) error = %v, want ErrEmptyPitch", pitch, err)
		}
	}
}

func TestPreviewDoesNotCreate(t *testing.T) {
	repo := &stubRepo{
		parent: completedParent(48 * time.Hour),
		recipients: []domain.CampaignRecipient{
			sentRecipient("r0", "x@lead.io", "a2", 0),
			sentRecipient("r1", "y@lead.io", "a1", 1),
		},
	}

	preview, err := NewService(repo).PreviewFollowup(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatalf("PreviewFollowup() error: %v", err)
	}
	if repo.created != nil {
		t.Error("preview created a campaign")
	}
	if len(preview.Mappings) != 2 {
		t.Fatalf("mappings = %d, want 2", len(preview.Mappings))
	}
	// First-seen account order follows parent recipient positions.
	if preview.Mappings[0].AccountID != "a2" || preview.Mappings[1].AccountID != "a1" {
		t.Errorf("mapping order = %s, %s; want a2, a1",
			preview.Mappings[0].AccountID, preview.Mappings[1].AccountID)
	}
}

func TestIneligibleParentKeepsSentinelIdentity(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*stubRepo)
		want  error
	}{
		{
			"too recent",
			func(r *stubRepo) { r.parent = completedParent(23 * time.Hour) },
			ErrParentTooRecent,
		},
		{
			"not completed",
			func(r *stubRepo) { r.parent.Status = domain.CampaignSending },
			ErrParentNotCompleted,
		},
		{
			"already followed up",
			func(r *stubRepo) {
				r.priorFollowup = &domain.Campaign{ID: "f1", Status: domain.CampaignCompleted}
			},
			ErrAlreadyFollowedUp,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{parent: completedParent(48 * time.Hour)}
			tt.setup(repo)
			svc := NewService(repo)

			input := CreateInput{ParentID: "p1", PitchHTML: "<p>Any update?</p>"}
			if _, err := svc.Create(context.Background(), "u1", input); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
			if _, err := svc.PreviewFollowup(context.Background(), "u1", "p1"); !errors.Is(err, tt.want) {
				t.Errorf("PreviewFollowup() error = %v, want %v", err, tt.want)
			}
		})
	}
}
