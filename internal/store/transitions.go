package store

import "upets/platform-service/internal/models"

const (
	ActionMarkPrinted = "mark_printed"
	ActionAssign      = "assign"
	ActionReassign    = "reassign"
	ActionUnassign    = "unassign"
	ActionActivate    = "activate"
	ActionReportLost  = "report_lost"
	ActionReportFound = "report_found"
	ActionReactivate  = "reactivate"
	ActionExpire      = "expire"
)

var transitionMap = map[string][]string{
	ActionMarkPrinted: {models.QRStatusInactive},
	ActionAssign:      {models.QRStatusInactive, models.QRStatusPrinted},
	ActionReassign:    {models.QRStatusInactive, models.QRStatusPrinted, models.QRStatusAssigned},
	ActionUnassign:    {models.QRStatusAssigned},
	ActionActivate:    {models.QRStatusInactive, models.QRStatusPrinted, models.QRStatusAssigned},
	ActionReportLost:  {models.QRStatusActive},
	ActionReportFound: {models.QRStatusLost},
	ActionReactivate:  {models.QRStatusFound, models.QRStatusExpired},
	ActionExpire: {
		models.QRStatusInactive, models.QRStatusPrinted, models.QRStatusAssigned,
		models.QRStatusActive, models.QRStatusLost, models.QRStatusFound,
	},
}

var transitionTarget = map[string]string{
	ActionMarkPrinted: models.QRStatusPrinted,
	ActionAssign:      models.QRStatusAssigned,
	ActionReassign:    models.QRStatusAssigned,
	ActionActivate:    models.QRStatusActive,
	ActionReportLost:  models.QRStatusLost,
	ActionReportFound: models.QRStatusFound,
	ActionReactivate:  models.QRStatusActive,
	ActionExpire:      models.QRStatusExpired,
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// AllowedFrom lists the statuses an action may start from.
func AllowedFrom(action string) []string {
	return append([]string(nil), transitionMap[action]...)
}

// TargetStatus returns the status an action leads to. Unassign depends on
// the print fact and is resolved by UnassignTarget.
func TargetStatus(action string) (string, bool) {
	status, ok := transitionTarget[action]
	return status, ok
}

func UnassignTarget(isPrinted bool) string {
	if isPrinted {
		return models.QRStatusPrinted
	}
	return models.QRStatusInactive
}

// OwnerActions are the transitions an owner may request on their own code.
var OwnerActions = map[string]bool{
	ActionReportLost:  true,
	ActionReportFound: true,
	ActionReactivate:  true,
}

// ownerTransitionMap narrows transitionMap for owners: only found codes come
// back to active. Reactivating an expired code takes an administrator.
var ownerTransitionMap = map[string][]string{
	ActionReportLost:  {models.QRStatusActive},
	ActionReportFound: {models.QRStatusLost},
	ActionReactivate:  {models.QRStatusFound},
}

func ValidOwnerTransition(action, fromStatus string) bool {
	for _, status := range ownerTransitionMap[action] {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// TransitionActions are the actions accepted by Transition.
var TransitionActions = map[string]bool{
	ActionReportLost:  true,
	ActionReportFound: true,
	ActionReactivate:  true,
	ActionExpire:      true,
}

func EventTypeFor(action string) string {
	switch action {
	case ActionReportLost:
		return "qr.lost"
	case ActionReportFound:
		return "qr.found"
	case ActionReactivate:
		return "qr.reactivated"
	case ActionExpire:
		return "qr.expired"
	case ActionActivate:
		return "qr.activated"
	}
	return "qr." + action
}

var subscriptionTransitions = map[string][]string{
	"pause":  {models.SubscriptionActive},
	"resume": {models.SubscriptionPaused},
	"cancel": {models.SubscriptionActive, models.SubscriptionPaused},
	"expire": {models.SubscriptionActive, models.SubscriptionPaused},
}

var subscriptionTargets = map[string]string{
	"pause":  models.SubscriptionPaused,
	"resume": models.SubscriptionActive,
	"cancel": models.SubscriptionCancelled,
	"expire": models.SubscriptionExpired,
}

func ValidSubscriptionTransition(action, fromStatus string) bool {
	for _, status := range subscriptionTransitions[action] {
		if status == fromStatus {
			return true
		}
	}
	return false
}

func SubscriptionTarget(action string) (string, bool) {
	status, ok := subscriptionTargets[action]
	return status, ok
}
