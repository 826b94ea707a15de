package domain

import (
	"fmt"
	"time"

	apperrors "github.com/utafrali/MarketGo/pkg/errors"
)

// Action is an explicit lifecycle transition request.
type Action string

const (
	ActionActivate Action = "activate"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionExpire   Action = "expire"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionActivate, ActionPause, ActionResume, ActionExpire:
		return a, nil
	}
	return "", apperrors.InvalidInput(fmt.Sprintf("unknown lifecycle action %q", s))
}

// transitions lists the source statuses each action accepts and its target.
var transitions = map[Action]struct {
	from []CampaignStatus
	to   CampaignStatus
}{
	ActionActivate: {from: []CampaignStatus{StatusUpcoming, StatusPaused}, to: StatusActive},
	ActionPause:    {from: []CampaignStatus{StatusActive}, to: StatusPaused},
	ActionResume:   {from: []CampaignStatus{StatusPaused}, to: StatusActive},
	ActionExpire:   {from: []CampaignStatus{StatusActive, StatusPaused}, to: StatusExpired},
}

// Lifecycle is the campaign state machine. Grace is how far in the future a
// campaign's start may lie when it is made ACTIVE.
type Lifecycle struct {
	Grace time.Duration
}

// Next validates action against c at now and returns the target status.
// Rejections are Conflict errors naming the current status.
func (l Lifecycle) Next(c *Campaign, action Action, now time.Time) (CampaignStatus, error) {
	t, ok := transitions[action]
	if !ok {
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown lifecycle action %q", action))
	}

	allowed := false
	for _, s := range t.from {
		if c.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", apperrors.Conflict(fmt.Sprintf("cannot %s campaign %s in status %s", action, c.ID, c.Status))
	}

	if t.to == StatusActive {
		if err := l.checkActivatable(c, now); err != nil {
			return "", err
		}
	}
	return t.to, nil
}

func (l Lifecycle) checkActivatable(c *Campaign, now time.Time) error {
	if c.StartDate.After(now.Add(l.Grace)) {
		return apperrors.Conflict(fmt.Sprintf(
			"campaign %s starts at %s; it may only become ACTIVE within %s of its start",
			c.ID, c.StartDate.Format(time.RFC3339), l.Grace))
	}
	if !c.EndDate.After(now) {
		return apperrors.Conflict(fmt.Sprintf("campaign %s ended at %s", c.ID, c.EndDate.Format(time.RFC3339)))
	}
	return nil
}

// CheckDelete rejects deletion of ACTIVE and EXPIRED campaigns.
func (l Lifecycle) CheckDelete(c *Campaign) error {
	if !c.Status.Deletable() {
		return apperrors.Conflict(fmt.Sprintf("cannot delete campaign %s in status %s", c.ID, c.Status))
	}
	return nil
}

// InitialStatus resolves the status a new campaign is created with. An empty
// request picks ACTIVE when the start is within grace and UPCOMING otherwise.
func (l Lifecycle) InitialStatus(requested CampaignStatus, c *Campaign, now time.Time) (CampaignStatus, error) {
	switch requested {
	case "":
		if c.StartDate.After(now.Add(l.Grace)) {
			return StatusUpcoming, nil
		}
		return StatusActive, nil
	case StatusUpcoming, StatusPaused:
		return requested, nil
	case StatusActive:
		if err := l.checkActivatable(c, now); err != nil {
			return "", err
		}
		return StatusActive, nil
	case StatusExpired:
		return "", apperrors.Conflict("a campaign cannot be created EXPIRED")
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown campaign status %q", requested))
	}
}

// Target is the status action leads to, without any precondition check.
// The scheduled sweep uses it to replay the actions returned by Due.
func Target(action Action) CampaignStatus {
	return transitions[action].to
}

// Due returns the transitions the scheduled sweep should apply to c at now,
// in order. An UPCOMING campaign whose window has already closed is activated
// and then expired.
func (l Lifecycle) Due(c *Campaign, now time.Time) []Action {
	ended := !c.EndDate.After(now)

	switch c.Status {
	case StatusUpcoming:
		if ended {
			return []Action{ActionActivate, ActionExpire}
		}
		if !c.StartDate.After(now) {
			return []Action{ActionActivate}
		}
	case StatusActive, StatusPaused:
		if ended {
			return []Action{ActionExpire}
		}
	}
	return nil
}
