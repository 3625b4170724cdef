// Package onboarding drives the new-organisation wizard: one draft per user,
// filled step by step and turned into a tenant on completion.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/invitation"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/notifications"
	"github.com/pavitra93/care-intake-portal/shared/tenantstore"
)

type Step string

const (
	StepOrganisation Step = "organisation"
	StepBranding     Step = "branding"
	StepFeatures     Step = "features"
	StepDocuments    Step = "documents"
	StepTeam         Step = "team"
	StepReview       Step = "review"
)

// Steps in wizard order
var Steps = []Step{StepOrganisation, StepBranding, StepFeatures, StepDocuments, StepTeam, StepReview}

const (
	draftPrefix = "onboarding:draft:"
	DraftTTL    = 24 * time.Hour
)

var (
	ErrUnknownStep    = errors.New("unknown onboarding step")
	ErrStepOutOfOrder = errors.New("onboarding step not reached yet")
	ErrMissingPayload = errors.New("step payload is missing")
	ErrIncomplete     = errors.New("onboarding is not complete")
	ErrNoPreviousStep = errors.New("already at the first step")
	ErrReviewNotSaved = errors.New("the review step is completed, not saved")
)

func stepIndex(s Step) int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// Organisation is the first wizard step
type Organisation struct {
	Name      string `json:"name"`
	LegalName string `json:"legal_name,omitempty"`
	ABN       string `json:"abn,omitempty"`
}

// TeamMember is someone to invite once the tenant exists
type TeamMember struct {
	Email string          `json:"email"`
	Role  models.UserRole `json:"role"`
}

// Draft is the saved wizard state
type Draft struct {
	Step         Step                    `json:"step"`
	Completed    map[Step]bool           `json:"completed"`
	Organisation Organisation            `json:"organisation"`
	Branding     models.Branding         `json:"branding"`
	Features     models.Features         `json:"features"`
	Documents    models.DocumentSettings `json:"documents"`
	Team         []TeamMember            `json:"team"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

func newDraft() *Draft {
	return &Draft{
		Step:      StepOrganisation,
		Completed: map[Step]bool{},
		Branding:  models.DefaultBranding(),
		Features:  models.DefaultFeatures(),
		Documents: models.DefaultDocumentSettings(),
		Team:      []TeamMember{},
	}
}

// Ready reports whether every step before review has been saved
func (d *Draft) Ready() bool {
	for _, s := range Steps[:len(Steps)-1] {
		if !d.Completed[s] {
			return false
		}
	}
	return true
}

// StepInput is the payload for one step; only the field matching Step is read
type StepInput struct {
	Step         Step                     `json:"step" binding:"required"`
	Organisation *Organisation            `json:"organisation,omitempty"`
	Branding     *models.Branding         `json:"branding,omitempty"`
	Features     *models.Features         `json:"features,omitempty"`
	Documents    *models.DocumentSettings `json:"documents,omitempty"`
	Team         []TeamMember             `json:"team,omitempty"`
}

// InviteLink is a link to send to an invited team member
type InviteLink struct {
	Email string          `json:"email"`
	Role  models.UserRole `json:"role"`
	Link  string          `json:"link"`
}

// Result is what completing the wizard produced
type Result struct {
	Tenant      models.Tenant `json:"tenant"`
	Invitations []InviteLink  `json:"invitations"`
}

// Wizard stores drafts and completes them
type Wizard struct {
	cache  cache.Cache
	store  *tenantstore.Store
	codec  *invitation.Codec
	center *notifications.Center
	appURL string
	now    func() time.Time
}

func NewWizard(c cache.Cache, store *tenantstore.Store, codec *invitation.Codec, center *notifications.Center, appURL string) *Wizard {
	return &Wizard{cache: c, store: store, codec: codec, center: center, appURL: appURL, now: time.Now}
}

// Get returns the user's draft, or a fresh one
func (w *Wizard) Get(ctx context.Context, userID string) (*Draft, error) {
	var d Draft
	if err := cache.GetJSON(ctx, w.cache, draftPrefix+userID, &d); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return newDraft(), nil
		}
		return nil, fmt.Errorf("failed to load onboarding draft: %w", err)
	}
	if d.Completed == nil {
		d.Completed = map[Step]bool{}
	}
	return &d, nil
}

// Save validates and stores one step. Saving the current step moves the wizard forward;
// earlier steps can be revisited without losing later ones.
func (w *Wizard) Save(ctx context.Context, userID string, in StepInput) (*Draft, error) {
	idx := stepIndex(in.Step)
	if idx < 0 {
		return nil, ErrUnknownStep
	}
	if in.Step == StepReview {
		return nil, ErrReviewNotSaved
	}

	d, err := w.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if idx > stepIndex(d.Step) {
		return nil, ErrStepOutOfOrder
	}

	if err := apply(d, in); err != nil {
		return nil, err
	}

	d.Completed[in.Step] = true
	if in.Step == d.Step {
		d.Step = Steps[idx+1]
	}
	if err := w.put(ctx, userID, d); err != nil {
		return nil, err
	}
	return d, nil
}

func apply(d *Draft, in StepInput) error {
	switch in.Step {
	case StepOrganisation:
		if in.Organisation == nil {
			return ErrMissingPayload
		}
		org := *in.Organisation
		if err := validateOrganisation(&org); err != nil {
			return err
		}
		d.Organisation = org
	case StepBranding:
		if in.Branding == nil {
			return ErrMissingPayload
		}
		b := *in.Branding
		if err := validateBranding(&b); err != nil {
			return err
		}
		d.Branding = b
	case StepFeatures:
		if in.Features == nil {
			return ErrMissingPayload
		}
		d.Features = *in.Features
	case StepDocuments:
		if in.Documents == nil {
			return ErrMissingPayload
		}
		docs := *in.Documents
		if err := validateDocuments(&docs); err != nil {
			return err
		}
		d.Documents = docs
	case StepTeam:
		team := append([]TeamMember{}, in.Team...)
		if err := validateTeam(team); err != nil {
			return err
		}
		d.Team = team
	}
	return nil
}

// Back moves the wizard one step back
func (w *Wizard) Back(ctx context.Context, userID string) (*Draft, error) {
	d, err := w.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := stepIndex(d.Step)
	if idx <= 0 {
		return nil, ErrNoPreviousStep
	}
	d.Step = Steps[idx-1]
	if err := w.put(ctx, userID, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Discard throws the draft away
func (w *Wizard) Discard(ctx context.Context, userID string) error {
	return w.cache.Delete(ctx, draftPrefix+userID)
}

// Complete creates the tenant, selects it for the user, mints invitation links
// for the team and clears the draft
func (w *Wizard) Complete(ctx context.Context, user models.UserInfo) (*Result, error) {
	d, err := w.Get(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	if !d.Ready() {
		return nil, ErrIncomplete
	}

	docs := d.Documents
	if docs.ABN == "" {
		docs.ABN = d.Organisation.ABN
	}
	if docs.LegalName == "" {
		docs.LegalName = d.Organisation.LegalName
	}
	branding, features := d.Branding, d.Features

	tenant, err := w.store.Create(ctx, models.NewTenant{
		Name:      d.Organisation.Name,
		Status:    models.TenantStatusTrial,
		Branding:  &branding,
		Features:  &features,
		Documents: &docs,
	})
	if err != nil {
		return nil, err
	}

	if err := w.store.SetActive(user.UserID, tenant.ID); err != nil {
		logrus.WithError(err).WithField("tenant_id", tenant.ID).Warn("Failed to select new tenant")
	}

	result := &Result{Tenant: tenant, Invitations: []InviteLink{}}
	for _, m := range d.Team {
		token, err := w.codec.Encode(models.Invitation{TenantID: tenant.ID, Email: m.Email, Role: m.Role, IssuedAt: w.now()})
		if err != nil {
			return nil, err
		}
		result.Invitations = append(result.Invitations, InviteLink{
			Email: m.Email,
			Role:  m.Role,
			Link:  invitation.Link(w.appURL, token),
		})
	}

	event := notifications.NewTenantEvent(notifications.EventOnboardingCompleted, tenant, user.UserID)
	if _, err := w.center.Push(ctx, user.UserID, event.Notification()); err != nil {
		logrus.WithError(err).Warn("Failed to push onboarding notification")
	}

	if err := w.Discard(ctx, user.UserID); err != nil {
		logrus.WithError(err).Warn("Failed to clear onboarding draft")
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id": tenant.ID,
		"user_id":   user.UserID,
		"invites":   len(result.Invitations),
	}).Info("Onboarding completed")
	return result, nil
}

func (w *Wizard) put(ctx context.Context, userID string, d *Draft) error {
	d.UpdatedAt = w.now().UTC()
	if err := cache.SetJSON(ctx, w.cache, draftPrefix+userID, d, DraftTTL); err != nil {
		return fmt.Errorf("failed to save onboarding draft: %w", err)
	}
	return nil
}
