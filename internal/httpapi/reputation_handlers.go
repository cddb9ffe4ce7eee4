package httpapi

import (
	"net/http"

	"github.com/rasyiqi-code/breaktool-sub003/internal/badges"
)

func (a *API) handleBadgeCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"badges": a.engine.BadgeCatalog()})
}

func (a *API) handleTrustScore(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if _, ok := a.actingOn(w, r, userID); !ok {
		return
	}
	res, err := a.engine.CalculateTrustScore(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleComputeBadges(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if _, ok := a.actingOn(w, r, userID); !ok {
		return
	}
	ids, err := a.engine.ComputeBadges(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	details := make([]badges.Badge, 0, len(ids))
	for _, id := range ids {
		if b, ok := badges.Lookup(id); ok {
			details = append(details, b)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "badges": ids, "details": details})
}

func (a *API) handleVerdict(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.privileged(w, r); !ok {
		return
	}
	res, err := a.engine.AggregateVerdict(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleReviewEvent is called by the reviews subsystem after a review is
// written, edited or voted on.
func (a *API) handleReviewEvent(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.privileged(w, r); !ok {
		return
	}
	var req reviewEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.engine.OnReviewChanged(r.Context(), req.AuthorID, req.ToolID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "recomputed"})
}
