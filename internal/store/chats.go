package store

import (
	"slices"

	"github.com/agora/internal/model"
)

// SessionPatch: частичное знание о 1:1 сессии из ответа REST или push-события.
// Пустые поля не меняют кэш.
type SessionPatch struct {
	ID                int64
	Status            model.SessionStatus
	Type              model.SessionType
	User1Username     string
	User2Username     string
	User1SessionToken string
	User2SessionToken string
	Reason            string
}

// PatchFromSession строит патч из сессии, полученной по REST.
func PatchFromSession(cs model.ChatSession) SessionPatch {
	return SessionPatch{
		ID:                cs.ID,
		Status:            cs.Status,
		Type:              cs.Type,
		User1Username:     cs.User1Username,
		User2Username:     cs.User2Username,
		User1SessionToken: cs.User1SessionToken,
		User2SessionToken: cs.User2SessionToken,
	}
}

// mergeSession сливает патч в кэшированную копию. Статус только растёт
// (waiting < active < ended), остальные поля заполняются, если ещё пусты.
func mergeSession(cur model.ChatSession, p SessionPatch) (model.ChatSession, bool) {
	changed := false
	if cur.ID == 0 {
		cur.ID = p.ID
		changed = true
	}
	if p.Status.Rank() > cur.Status.Rank() {
		cur.Status = p.Status
		changed = true
	}
	fill := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	if cur.Type == "" && p.Type != "" {
		cur.Type = p.Type
		changed = true
	}
	fill(&cur.User1Username, p.User1Username)
	fill(&cur.User2Username, p.User2Username)
	fill(&cur.User1SessionToken, p.User1SessionToken)
	fill(&cur.User2SessionToken, p.User2SessionToken)
	return cur, changed
}

// ApplySessionPatch: единая точка слияния REST-ответов и push-событий о сессии.
// Результат не зависит ни от порядка, ни от повторов патчей.
func (s *Store) ApplySessionPatch(p SessionPatch) {
	if p.ID == 0 {
		return
	}
	s.update(func(st *State) bool {
		merged, changed := mergeSession(st.Sessions[p.ID], p)
		if changed {
			st.Sessions[p.ID] = merged
		}
		if p.Reason != "" && st.EndReasons[p.ID] == "" {
			st.EndReasons[p.ID] = p.Reason
			changed = true
		}
		if reconcileRandom(st) {
			changed = true
		}
		if reconcilePlanned(st, p.ID) {
			changed = true
		}
		return changed
	})
}

// reconcileRandom выводит статус random-чата из слитой сессии.
func reconcileRandom(st *State) bool {
	r := &st.Random
	if r.Status == RandomIdle || r.SessionID == 0 {
		return false
	}
	cs, ok := st.Sessions[r.SessionID]
	if !ok {
		return false
	}
	changed := false
	switch cs.Status {
	case model.SessionActive:
		if r.Status == RandomWaiting {
			r.Status = RandomMatched
			changed = true
		}
	case model.SessionEnded:
		if r.Status == RandomWaiting || r.Status == RandomMatched {
			r.Status = RandomEnded
			changed = true
		}
	}
	if r.Partner == "" && cs.Status != model.SessionWaiting {
		if name, _ := cs.Partner(st.Identity.SessionToken, st.Identity.Username); name != "" {
			r.Partner = name
			changed = true
		}
	}
	if r.Status == RandomEnded && r.EndReason == "" && st.EndReasons[r.SessionID] != "" {
		r.EndReason = st.EndReasons[r.SessionID]
		changed = true
	}
	return changed
}

func reconcilePlanned(st *State, id int64) bool {
	cs, ok := st.Sessions[id]
	if !ok {
		return false
	}
	for i := range st.PlannedChats {
		c := &st.PlannedChats[i]
		if c.ID != id {
			continue
		}
		changed := false
		if cs.Status.Rank() > c.Status.Rank() {
			c.Status = cs.Status
			changed = true
		}
		if c.PartnerUsername == "" {
			if name, _ := cs.Partner(st.Identity.SessionToken, st.Identity.Username); name != "" {
				c.PartnerUsername = name
				changed = true
			}
		}
		return changed
	}
	return false
}

// --- random chat ---

// BeginRandomSearch переводит random-чат в waiting для сессии id. Если push start_chat
// для этой сессии уже пришёл раньше ответа REST, сразу получается matched.
func (s *Store) BeginRandomSearch(id int64) bool {
	return s.update(func(st *State) bool {
		if st.Random.Status != RandomIdle && st.Random.Status != RandomEnded {
			return false
		}
		st.Random = RandomChat{Status: RandomWaiting, SessionID: id, Messages: []model.Message{}}
		reconcileRandom(st)
		return true
	})
}

// CancelRandomSearch: waiting -> idle.
func (s *Store) CancelRandomSearch() bool {
	return s.update(func(st *State) bool {
		if st.Random.Status != RandomWaiting {
			return false
		}
		st.Random = RandomChat{Status: RandomIdle, Messages: []model.Message{}}
		return true
	})
}

// ClearRandomChat: любое состояние -> idle, лог очищается.
func (s *Store) ClearRandomChat() {
	s.update(func(st *State) bool {
		if st.Random.Status == RandomIdle && st.Random.SessionID == 0 && len(st.Random.Messages) == 0 {
			return false
		}
		st.Random = RandomChat{Status: RandomIdle, Messages: []model.Message{}}
		return true
	})
}

// EndRandomChat: matched -> ended, лог сохраняется.
func (s *Store) EndRandomChat(reason string) bool {
	return s.update(func(st *State) bool {
		r := &st.Random
		if r.Status != RandomMatched {
			return false
		}
		r.Status = RandomEnded
		r.EndReason = reason
		merged, _ := mergeSession(st.Sessions[r.SessionID], SessionPatch{ID: r.SessionID, Status: model.SessionEnded})
		st.Sessions[r.SessionID] = merged
		if reason != "" && st.EndReasons[r.SessionID] == "" {
			st.EndReasons[r.SessionID] = reason
		}
		return true
	})
}

// AddRandomChatMessage дописывает сообщение в лог в порядке прихода; повтор id игнорируется.
func (s *Store) AddRandomChatMessage(m model.Message) bool {
	return s.update(func(st *State) bool {
		r := &st.Random
		if r.Status == RandomIdle {
			return false
		}
		if m.ID != 0 {
			for _, have := range r.Messages {
				if have.ID == m.ID {
					return false
				}
			}
		}
		r.Messages = append(r.Messages, m)
		return true
	})
}

// --- planned chats (floaters) ---

// AddPlannedChat открывает плавающее окно; повторный id игнорируется.
func (s *Store) AddPlannedChat(c model.PlannedChat) bool {
	return s.update(func(st *State) bool {
		if _, ok := st.PlannedChat(c.ID); ok {
			return false
		}
		st.PlannedChats = append(st.PlannedChats, c)
		reconcilePlanned(st, c.ID)
		return true
	})
}

func (s *Store) RemovePlannedChat(id int64) bool {
	return s.update(func(st *State) bool {
		for i, c := range st.PlannedChats {
			if c.ID == id {
				st.PlannedChats = append(st.PlannedChats[:i:i], st.PlannedChats[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (s *Store) withPlanned(id int64, fn func(c *model.PlannedChat) bool) bool {
	return s.update(func(st *State) bool {
		for i := range st.PlannedChats {
			if st.PlannedChats[i].ID == id {
				return fn(&st.PlannedChats[i])
			}
		}
		return false
	})
}

// ToggleMinimize переключает свёрнутость окна. При разворачивании счётчик непрочитанного сбрасывается.
func (s *Store) ToggleMinimize(id int64) bool {
	return s.withPlanned(id, func(c *model.PlannedChat) bool {
		c.IsMinimized = !c.IsMinimized
		if !c.IsMinimized {
			c.UnreadCount = 0
		}
		return true
	})
}

func (s *Store) SetUnreadCount(id int64, n int) bool {
	if n < 0 {
		n = 0
	}
	return s.withPlanned(id, func(c *model.PlannedChat) bool {
		if c.UnreadCount == n {
			return false
		}
		c.UnreadCount = n
		return true
	})
}

func (s *Store) ClearUnread(id int64) bool {
	return s.SetUnreadCount(id, 0)
}

// SetPlannedChatStatus меняет кэшированный статус окна; статус, как и в кэше сессий, только растёт.
func (s *Store) SetPlannedChatStatus(id int64, status model.SessionStatus) bool {
	return s.withPlanned(id, func(c *model.PlannedChat) bool {
		if status.Rank() <= c.Status.Rank() {
			return false
		}
		c.Status = status
		return true
	})
}

// --- message requests ---

// AddMessageRequest добавляет входящий запрос; повтор по session id игнорируется.
func (s *Store) AddMessageRequest(r model.MessageRequest) bool {
	return s.update(func(st *State) bool {
		if st.HasMessageRequest(r.SessionID) {
			return false
		}
		st.MessageRequests = append(st.MessageRequests, r)
		return true
	})
}

// RemoveMessageRequest удаляет запрос; если его нет, ничего не происходит.
func (s *Store) RemoveMessageRequest(sessionID int64) bool {
	return s.update(func(st *State) bool {
		for i, r := range st.MessageRequests {
			if r.SessionID == sessionID {
				st.MessageRequests = append(st.MessageRequests[:i:i], st.MessageRequests[i+1:]...)
				return true
			}
		}
		return false
	})
}

// --- unread accounting ---

// UnreadTarget: какой из счётчиков увеличил RecordIncomingMessage.
type UnreadTarget int

const (
	UnreadNone UnreadTarget = iota
	UnreadFloater
	UnreadGlobal
)

// RecordIncomingMessage учитывает входящее сообщение сессии: при открытом окне растёт его
// счётчик, иначе глобальный ChatUnreadCounts. Собственные сообщения не считаются.
func (s *Store) RecordIncomingMessage(sessionID int64, senderToken string) UnreadTarget {
	target := UnreadNone
	s.update(func(st *State) bool {
		if senderToken != "" && senderToken == st.Identity.SessionToken {
			return false
		}
		for i := range st.PlannedChats {
			if st.PlannedChats[i].ID == sessionID {
				st.PlannedChats[i].UnreadCount++
				target = UnreadFloater
				return true
			}
		}
		st.ChatUnreadCounts[sessionID]++
		target = UnreadGlobal
		return true
	})
	return target
}

func (s *Store) ClearChatUnread(sessionID int64) bool {
	return s.update(func(st *State) bool {
		if _, ok := st.ChatUnreadCounts[sessionID]; !ok {
			return false
		}
		delete(st.ChatUnreadCounts, sessionID)
		return true
	})
}

// ExpireSession закрывает истёкшую сессию целиком: кэш получает ended, запрос и окно
// удаляются, а ожидающий поиск random-чата сбрасывается в idle (а не в ended).
// Возвращает true, если был сброшен поиск.
func (s *Store) ExpireSession(sessionID int64) bool {
	wasSearching := false
	s.update(func(st *State) bool {
		if st.Random.Status == RandomWaiting && st.Random.SessionID == sessionID {
			st.Random = RandomChat{Status: RandomIdle, Messages: []model.Message{}}
			wasSearching = true
		}
		merged, _ := mergeSession(st.Sessions[sessionID], SessionPatch{ID: sessionID, Status: model.SessionEnded})
		st.Sessions[sessionID] = merged
		st.MessageRequests = slices.DeleteFunc(st.MessageRequests, func(r model.MessageRequest) bool { return r.SessionID == sessionID })
		st.PlannedChats = slices.DeleteFunc(st.PlannedChats, func(c model.PlannedChat) bool { return c.ID == sessionID })
		delete(st.ChatUnreadCounts, sessionID)
		reconcileRandom(st)
		return true
	})
	return wasSearching
}
