package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/agora/internal/logger"
)

type Route string

const (
	RouteHome     Route = "home"
	RouteRandom   Route = "random"
	RouteChats    Route = "chats"
	RouteChat     Route = "chat"
	RouteChatroom Route = "chatroom"
	RouteForums   Route = "forums"
)

// Navigator держит единственную открытую страницу процесса, как вкладка браузера.
// Смена страницы скрывает баннер, закрывает предыдущую страницу и, если уходим
// с random-чата, запускает его Teardown.
type Navigator struct {
	d      Deps
	Random *RandomChat

	mu    sync.Mutex
	route Route
	id    int64
	list  *PrivateChatList
	chat  *PrivateChat
	room  *Chatroom
}

func NewNavigator(d Deps) *Navigator {
	return &Navigator{d: d, Random: NewRandomChat(d), route: RouteHome}
}

// Current возвращает открытую страницу и её id (для chat и chatroom).
func (n *Navigator) Current() (Route, int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route, n.id
}

// enter меняет страницу. false: та же страница уже открыта.
func (n *Navigator) enter(ctx context.Context, route Route, id int64) bool {
	if n.route == route && n.id == id {
		return false
	}
	n.d.Store.DismissNotification()
	n.leave(ctx)
	n.route, n.id = route, id
	logger.Debugf("navigator: -> %s %d", route, id)
	return true
}

func (n *Navigator) leave(ctx context.Context) {
	switch n.route {
	case RouteRandom:
		n.Random.Teardown(ctx)
	case RouteChats:
		if n.list != nil {
			n.list.Close()
		}
	case RouteChat:
		if n.chat != nil {
			n.chat.Close()
		}
	case RouteChatroom:
		if n.room != nil {
			n.room.Close()
		}
	}
	n.list, n.chat, n.room = nil, nil, nil
	n.route, n.id = RouteHome, 0
}

func (n *Navigator) Home(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enter(ctx, RouteHome, 0)
}

func (n *Navigator) OpenForums(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enter(ctx, RouteForums, 0)
}

// OpenRandom открывает страницу random-чата. Поиск начинается отдельным Find.
func (n *Navigator) OpenRandom(ctx context.Context) *RandomChat {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enter(ctx, RouteRandom, 0)
	return n.Random
}

func (n *Navigator) OpenList(ctx context.Context) (*PrivateChatList, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.enter(ctx, RouteChats, 0) && n.list != nil {
		return n.list, nil
	}
	l, err := OpenPrivateChatList(ctx, n.d)
	if err != nil {
		n.route = RouteHome
		return nil, err
	}
	n.list = l
	return l, nil
}

func (n *Navigator) OpenChat(ctx context.Context, id int64) (*PrivateChat, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.enter(ctx, RouteChat, id) && n.chat != nil {
		return n.chat, nil
	}
	c, err := OpenPrivateChat(ctx, n.d, id)
	if err != nil {
		n.route, n.id = RouteHome, 0
		return nil, err
	}
	n.chat = c
	return c, nil
}

func (n *Navigator) OpenChatroom(ctx context.Context, id int64) (*Chatroom, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.enter(ctx, RouteChatroom, id) && n.room != nil {
		return n.room, nil
	}
	c, err := OpenChatroom(ctx, n.d, id)
	if err != nil {
		n.route, n.id = RouteHome, 0
		return nil, err
	}
	n.room = c
	return c, nil
}

// List, Chat и Chatroom возвращают открытую страницу или ErrInvalidState.
func (n *Navigator) List() (*PrivateChatList, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.list == nil {
		return nil, fmt.Errorf("chat list is not open: %w", ErrInvalidState)
	}
	return n.list, nil
}

func (n *Navigator) Chat(id int64) (*PrivateChat, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.chat == nil || n.chat.ID() != id {
		return nil, fmt.Errorf("chat %d is not open: %w", id, ErrInvalidState)
	}
	return n.chat, nil
}

func (n *Navigator) Chatroom(id int64) (*Chatroom, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.room == nil || n.room.ID() != id {
		return nil, fmt.Errorf("chatroom %d is not open: %w", id, ErrInvalidState)
	}
	return n.room, nil
}

// Shutdown при завершении процесса закрывает страницу и отправляет beacon для random-чата.
// С уходом со страницы random он делит guard, так что beacon уйдёт не больше одного раза.
func (n *Navigator) Shutdown(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leave(ctx)
	n.Random.Teardown(ctx)
}
