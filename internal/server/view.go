package server

import (
	"context"
	"time"

	"github.com/felixgeelhaar/activityflow/internal/activity"
	"github.com/felixgeelhaar/activityflow/internal/input"
)

// sessionView is the API representation of a live session.
type sessionView struct {
	ID          string         `json:"id"`
	ActivityRef string         `json:"activity_ref"`
	Status      string         `json:"status"`
	State       string         `json:"state"`
	Title       string         `json:"title,omitempty"`
	Preamble    string         `json:"preamble,omitempty"`
	Index       int            `json:"index"`
	Count       int            `json:"count"`
	Progress    float64        `json:"progress"`
	Direction   string         `json:"direction"`
	Transition  string         `json:"transition"`
	IsFirst     bool           `json:"is_first"`
	IsLast      bool           `json:"is_last"`
	Screen      *screenView    `json:"screen,omitempty"`
	Responses   map[string]any `json:"responses"`
	Error       *errorBody     `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type screenView struct {
	Index     int           `json:"index"`
	Ref       string        `json:"ref"`
	Question  string        `json:"question"`
	InputType string        `json:"input_type"`
	Prompt    *input.Prompt `json:"prompt"`
	Response  any           `json:"response,omitempty"`
}

// buildView renders l including its current screen. l.mu must be held.
// A screen that fails to build fails the view; an Errored controller does
// not, and is reported in the error field instead.
func buildView(ctx context.Context, l *Live) (*sessionView, error) {
	ctrl := l.ctrl
	v := &sessionView{
		ID:          l.session.ID,
		ActivityRef: l.session.ActivityRef,
		Status:      string(l.session.Status),
		State:       ctrl.State().String(),
		Preamble:    ctrl.PreambleText(),
		Index:       ctrl.Index(),
		Count:       len(ctrl.ScreenRefs()),
		Progress:    ctrl.ProgressFraction(),
		Direction:   ctrl.Direction().String(),
		Transition:  ctrl.Direction().Transition(),
		IsFirst:     ctrl.IsFirstScreen(),
		IsLast:      ctrl.IsLastScreen(),
		Responses:   ctrl.Responses(),
		StartedAt:   l.session.StartedAt,
		UpdatedAt:   l.session.UpdatedAt,
	}
	if def := ctrl.Definition(); def != nil {
		v.Title = def.Title
	}

	switch ctrl.State() {
	case activity.StateErrored:
		v.Error = newErrorBody(ctrl.Err())
		v.Responses = l.session.Responses
		return v, nil
	case activity.StateReady:
	default:
		return v, nil
	}

	s, ok := ctrl.CachedScreen()
	if !ok {
		var err error
		if s, err = ctrl.CurrentScreenModel(ctx); err != nil {
			return nil, err
		}
	}
	v.Screen = &screenView{
		Index:     s.Index,
		Ref:       s.Ref,
		Question:  s.Model.Question,
		InputType: s.Model.InputType,
		Prompt:    s.Prompt,
	}
	if s.HasPrior {
		v.Screen.Response = s.Prior
	}
	return v, nil
}
