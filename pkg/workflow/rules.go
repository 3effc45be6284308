// Package workflow holds the claim approval rules and the status mutation
// service built on them.
package workflow

import "boringexpenses/models"

// AllowedNextStatuses returns the statuses an actor may move a claim to.
// An empty, non-nil slice means the claim is view only for that actor.
func AllowedNextStatuses(current models.ClaimStatus, role models.Role, isOwner, isManagerOfOwner bool) []models.ClaimStatus {
	switch {
	case role == models.RoleEmployee && !isManagerOfOwner:
		if isOwner && current == models.StatusUnfiled {
			return []models.ClaimStatus{models.StatusUnfiled, models.StatusFiled}
		}
		return []models.ClaimStatus{}
	case role == models.RoleManager && isManagerOfOwner:
		if current == models.StatusFiled || current == models.StatusProcessing {
			return []models.ClaimStatus{models.StatusProcessing, models.StatusApproved}
		}
		return []models.ClaimStatus{}
	case role == models.RoleAdmin:
		if current == models.StatusPaid {
			return []models.ClaimStatus{models.StatusPaid}
		}
		if !current.Valid() {
			return []models.ClaimStatus{}
		}
		return models.ClaimStatuses()
	}
	return []models.ClaimStatus{}
}

// IsAllowed reports whether next is in AllowedNextStatuses.
func IsAllowed(current, next models.ClaimStatus, role models.Role, isOwner, isManagerOfOwner bool) bool {
	for _, s := range AllowedNextStatuses(current, role, isOwner, isManagerOfOwner) {
		if s == next {
			return true
		}
	}
	return false
}

// CanEdit reports whether the claim's title and description may be changed.
// Status changes are governed separately by AllowedNextStatuses.
func CanEdit(status models.ClaimStatus, role models.Role, isOwner bool) bool {
	switch status {
	case models.StatusUnfiled:
		return isOwner
	case models.StatusFiled:
		return role == models.RoleAdmin
	}
	return false
}

// Step is one entry of a claim's progress indicator.
type Step struct {
	Status  models.ClaimStatus `json:"status"`
	Label   string             `json:"label"`
	Color   string             `json:"color"`
	Active  bool               `json:"active"`
	Current bool               `json:"current"`
}

// Progress renders the lifecycle relative to current. Steps up to and
// including current are active.
func Progress(current models.ClaimStatus) []Step {
	idx := current.Index()
	all := models.ClaimStatuses()
	steps := make([]Step, 0, len(all))
	for i, s := range all {
		steps = append(steps, Step{
			Status:  s,
			Label:   s.Label(),
			Color:   s.Color(),
			Active:  idx >= 0 && i <= idx,
			Current: i == idx,
		})
	}
	return steps
}
