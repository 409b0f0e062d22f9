package module

// Action is the install endpoint's per-module action.
type Action string

const (
	ActionEnable   Action = "enable"
	ActionDisable  Action = "disable"
	ActionUpToDate Action = "uptodate"
	// ActionSuggest may come back from a simulation; it passes through
	// normalization and reissue untouched.
	ActionSuggest Action = "suggest"
)

// InstallRequest is one element of a bulk install payload. An empty Action
// means "use the operation's default"; normalization fills it in.
type InstallRequest struct {
	ID     string `json:"id"`
	Action Action `json:"action,omitempty"`
}

// InstallResult is one row of a bulk operation outcome. Exactly one of the
// outcome flags is set per result.
type InstallResult struct {
	ID               string `json:"id"`
	Action           Action `json:"action,omitempty"`
	From             string `json:"from,omitempty"`
	Success          bool   `json:"success,omitempty"`
	AlreadyExists    bool   `json:"alreadyExists,omitempty"`
	DoesNotExist     bool   `json:"doesNotExist,omitempty"`
	AlreadySatisfied bool   `json:"alreadySatisfied,omitempty"`
}

// RequestsFromIDs wraps bare module ids into install requests with no action
// set, leaving the default to normalization.
func RequestsFromIDs(ids []string) []InstallRequest {
	reqs := make([]InstallRequest, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, InstallRequest{ID: id})
	}
	return reqs
}

// NormalizeInstallRequests applies the default action to every request that
// does not carry an explicit one. Explicit actions are never overwritten.
func NormalizeInstallRequests(reqs []InstallRequest, defaultAction Action) []InstallRequest {
	out := make([]InstallRequest, 0, len(reqs))
	for _, req := range reqs {
		if req.Action == "" {
			req.Action = defaultAction
		}
		out = append(out, req)
	}
	return out
}

// RequestsFromResults turns a simulation's result rows back into install
// requests, carrying each row's resolved action forward.
func RequestsFromResults(results []InstallResult) []InstallRequest {
	reqs := make([]InstallRequest, 0, len(results))
	for _, res := range results {
		reqs = append(reqs, InstallRequest{ID: res.ID, Action: res.Action})
	}
	return reqs
}

// FilterFrontendIDs keeps the ids not following the backend naming
// convention, preserving input order.
func FilterFrontendIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !IsBackend(id) {
			out = append(out, id)
		}
	}
	return out
}

// FilterBackendIDs keeps the ids following the backend naming convention.
func FilterBackendIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if IsBackend(id) {
			out = append(out, id)
		}
	}
	return out
}

// FilterFrontendRequests is FilterFrontendIDs over action-tagged records,
// preserving their shape.
func FilterFrontendRequests(reqs []InstallRequest) []InstallRequest {
	out := make([]InstallRequest, 0, len(reqs))
	for _, req := range reqs {
		if !IsBackend(req.ID) {
			out = append(out, req)
		}
	}
	return out
}

// FilterBackendRequests is FilterBackendIDs over action-tagged records.
func FilterBackendRequests(reqs []InstallRequest) []InstallRequest {
	out := make([]InstallRequest, 0, len(reqs))
	for _, req := range reqs {
		if IsBackend(req.ID) {
			out = append(out, req)
		}
	}
	return out
}
