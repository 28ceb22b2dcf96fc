package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/agora/internal/logger"
	"github.com/agora/internal/model"
	"github.com/agora/internal/store"
)

// Requests: входящие приглашения в planned-чат.
type Requests struct {
	d Deps
}

func NewRequests(d Deps) *Requests {
	return &Requests{d: d}
}

// Accept принимает приглашение. Локальный запрос удаляется при любом исходе:
// неудача обычно значит, что приглашение на сервере уже истекло.
func (r *Requests) Accept(ctx context.Context, id int64) error {
	session, err := r.d.API.Accept(ctx, id)
	r.d.Store.RemoveMessageRequest(id)
	if err != nil {
		return r.d.fail("requests.Accept", err, "Failed to accept chat request")
	}
	if session != nil && session.ID == id {
		r.d.Store.ApplySessionPatch(store.PatchFromSession(*session))
	}
	r.d.Store.ApplySessionPatch(store.SessionPatch{ID: id, Status: model.SessionActive})
	// окно откроет и chat_request_accepted; AddPlannedChat не создаст второе
	r.d.Events.OpenFloater(id)
	logger.Infof("requests: accepted %d", id)
	return nil
}

func (r *Requests) Reject(ctx context.Context, id int64) error {
	err := r.d.API.Reject(ctx, id)
	r.d.Store.RemoveMessageRequest(id)
	if err != nil {
		return r.d.fail("requests.Reject", err, "Failed to reject chat request")
	}
	r.d.Store.ApplySessionPatch(store.SessionPatch{ID: id, Status: model.SessionEnded})
	logger.Infof("requests: rejected %d", id)
	return nil
}

// Planned: исходящие приглашения.
type Planned struct {
	d Deps
}

func NewPlanned(d Deps) *Planned {
	return &Planned{d: d}
}

// Invite отправляет приглашение пользователю recipient (username или session token).
func (p *Planned) Invite(ctx context.Context, recipient string) (*model.ChatSession, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, fmt.Errorf("planned.Invite: empty recipient: %w", ErrInvalidState)
	}
	session, err := p.d.API.MatchPlanned(ctx, recipient)
	if err != nil {
		return nil, p.d.fail("planned.Invite", err, "Failed to send chat request")
	}
	p.d.Store.ApplySessionPatch(store.PatchFromSession(*session))
	p.d.Store.ShowNotification(model.NotifySuccess, "Chat request sent to "+recipient, store.AutoDismiss(0))
	logger.Infof("planned: invited %s, session %d", recipient, session.ID)
	return session, nil
}
