package session

import "time"

// NotifyTyping records a local keystroke. The first keystroke after an idle
// period emits typing-started; every keystroke resets the inactivity window,
// and only its expiry (or a send, or Close) emits typing-stopped.
func (s *Session) NotifyTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == "" {
		return
	}

	if !s.typingActive {
		s.typingActive = true
		s.emitTypingLocked(true)
	}

	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	epoch := s.epoch
	s.typingTimer = time.AfterFunc(s.cfg.TypingIdleWindow, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch || !s.typingActive {
			return
		}
		s.typingActive = false
		s.typingTimer = nil
		s.emitTypingLocked(false)
	})
}

// stopTypingLocked cancels the debounce timer and, if typing was being
// signaled, emits typing-stopped immediately.
func (s *Session) stopTypingLocked(emit bool) {
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if s.typingActive {
		s.typingActive = false
		if emit {
			s.emitTypingLocked(false)
		}
	}
}

// emitTypingLocked pushes presence into the room. Typing is advisory UI
// state, so channel failures are only logged.
func (s *Session) emitTypingLocked(active bool) {
	if err := s.channel.EmitTyping(s.conversationID, s.cfg.Role, s.cfg.UserName, active); err != nil {
		s.log.Debug().Err(err).Bool("active", active).Msg("typing emit dropped")
	}
}
