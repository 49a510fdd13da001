// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

import "sync"

// accessController gates every read of subject data: a request for subject
// S's data succeeds iff the requester is S, an authorized reviewer, or the
// administrator.
type accessController struct {
	mu        sync.RWMutex
	admin     PrincipalID
	reviewers map[PrincipalID]struct{}
}

func newAccessController(admin PrincipalID) *accessController {
	return &accessController{
		admin:     admin,
		reviewers: make(map[PrincipalID]struct{}),
	}
}

func (ac *accessController) requireRead(requester, subject PrincipalID) error {
	if requester == subject {
		return nil
	}
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	if requester == ac.admin {
		return nil
	}
	if _, ok := ac.reviewers[requester]; ok {
		return nil
	}
	return ErrNotAuthorized
}

func (ac *accessController) requireAdmin(requester PrincipalID) error {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	if requester != ac.admin {
		return ErrNotAuthorized
	}
	return nil
}

func (ac *accessController) authorize(reviewer PrincipalID) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.reviewers[reviewer] = struct{}{}
}

func (ac *accessController) revoke(reviewer PrincipalID) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	delete(ac.reviewers, reviewer)
}
