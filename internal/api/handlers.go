package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/slot-token-queue/internal/slotqueue"
)

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	if errors.Is(err, slotqueue.ErrValidation) {
		return err
	}
	return errInvalidBody
}

var errInvalidBody = errors.New("could not parse JSON")

func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, slotqueue.ErrValidation) {
		handleServiceError(w, err)
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
}

func uuidParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func actor(r *http.Request) slotqueue.Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

func createSlotsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if err := decodeBody(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}

		in, err := req.toInput()
		if err != nil {
			handleServiceError(w, err)
			return
		}

		slots, err := svc.CreateSlots(r.Context(), actor(r), in)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, SlotsResponse{Slots: slots})
	}
}

func listOwnerSlotsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := uuidParam(w, r, "ownerID", "invalid_owner_id")
		if !ok {
			return
		}

		date := svc.Today()
		if raw := r.URL.Query().Get("date"); raw != "" {
			parsed, err := slotqueue.ParseDate(raw)
			if err != nil {
				handleServiceError(w, err)
				return
			}
			date = parsed
		}

		slots, err := svc.ListSlots(r.Context(), ownerID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if slots == nil {
			slots = []slotqueue.Slot{}
		}

		writeJSON(w, http.StatusOK, SlotsResponse{Slots: slots})
	}
}

func getSlotHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		slot, err := svc.GetSlot(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, slot)
	}
}

func updateSlotHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		var req UpdateSlotRequest
		if err := decodeBody(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
		upd, err := req.toUpdate()
		if err != nil {
			handleServiceError(w, err)
			return
		}

		slot, err := svc.UpdateSlot(r.Context(), actor(r), id, upd)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, slot)
	}
}

func deleteSlotHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		if err := svc.DeleteSlot(r.Context(), actor(r), id); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func bookTokenHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		tok, err := svc.Book(r.Context(), actor(r), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, tok)
	}
}

func listTokensHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		tokens, err := svc.OrderedView(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, TokensResponse{SlotID: id, Tokens: tokens})
	}
}

func startSessionHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		serving, err := svc.StartSession(r.Context(), actor(r), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SessionResponse{SlotID: id, Serving: serving})
	}
}

func estimatesHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		estimates, err := svc.Estimate(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, EstimatesResponse{SlotID: id, Estimates: estimates})
	}
}

func snapshotHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		snap, err := svc.Snapshot(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, snap)
	}
}

func completeTokenHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_token_id")
		if !ok {
			return
		}

		var req CompleteTokenRequest
		if err := decodeBody(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}

		adv, err := svc.MarkCompleted(r.Context(), actor(r), id, req.ActualMinutes)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, adv)
	}
}

func markWrongHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_token_id")
		if !ok {
			return
		}

		adv, err := svc.MarkWrong(r.Context(), actor(r), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, adv)
	}
}
