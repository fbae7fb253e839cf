package store

import "dinein/ordering-service/internal/models"

const (
	ActionExpire  = "expire"
	ActionConfirm = "confirm"
)

type sessionState struct {
	sessionStatus string
	paymentStatus string
}

var transitionMap = map[string][]sessionState{
	ActionExpire:  {{models.SessionActive, models.PaymentPending}},
	ActionConfirm: {{models.SessionActive, models.PaymentPending}},
}

var transitionTargets = map[string]sessionState{
	ActionExpire:  {models.SessionExpired, models.PaymentNotCompleted},
	ActionConfirm: {models.SessionCompleted, models.PaymentConfirmed},
}

// ValidTransition reports whether action may be applied to a session in the
// given state. Terminal sessions never transition.
func ValidTransition(action, sessionStatus, paymentStatus string) bool {
	if models.IsTerminalStatus(sessionStatus) {
		return false
	}
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, state := range allowed {
		if state.sessionStatus == sessionStatus && state.paymentStatus == paymentStatus {
			return true
		}
	}
	return false
}

// TransitionTarget returns the session and payment status produced by action.
func TransitionTarget(action string) (string, string, bool) {
	target, ok := transitionTargets[action]
	if !ok {
		return "", "", false
	}
	return target.sessionStatus, target.paymentStatus, true
}
