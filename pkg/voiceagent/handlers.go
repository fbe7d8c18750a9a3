package voiceagent

import "strings"

// LoggingFrameHandler logs inbound agent events. Binary frames are only
// logged when verbose is set, since they arrive many times per second.
func LoggingFrameHandler(logger *Logger, verbose bool) FrameHandler {
	logger = logger.WithComponent("Frames")
	return func(f InboundFrame) {
		if f.Kind == FrameBinary {
			if verbose {
				logger.Debugf("Received %d bytes of audio", len(f.Data))
			}
			return
		}

		ev, err := DecodeAgentEvent(f.Data)
		if err != nil {
			logger.WithError(err).Warn("Unreadable agent event")
			return
		}
		switch ev.Type {
		case EventConversationText:
			logger.WithField("role", ev.Role).Info(ev.Content)
		case EventError:
			logger.WithField("code", ev.Code).Error(ev.Description)
		case EventWarning:
			logger.WithField("code", ev.Code).Warn(ev.Description)
		default:
			if verbose {
				logger.Infof("Agent event %s", ev.Type)
			}
		}
	}
}

// ConversationTextHandler calls callback for every ConversationText event.
func ConversationTextHandler(callback func(role, content string)) FrameHandler {
	return func(f InboundFrame) {
		if f.Kind != FrameText {
			return
		}
		ev, err := DecodeAgentEvent(f.Data)
		if err != nil || ev.Type != EventConversationText {
			return
		}
		callback(strings.ToLower(ev.Role), ev.Content)
	}
}

// StateLoggingHandler logs every published snapshot.
func StateLoggingHandler(logger *Logger) StateHandler {
	logger = logger.WithComponent("State")
	return func(s Snapshot) {
		l := logger.WithField("state", s.State).WithField("attempts", s.Attempts)
		if s.Degraded {
			l.Warn("Reconnect ceiling reached, the agent is likely rate limiting this client (not confirmed)")
			return
		}
		l.Info("Session state changed")
	}
}
