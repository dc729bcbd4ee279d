package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Proton-105/mintwatch/internal/domain"
	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/middleware"
)

const maxBodyBytes = 1 << 20

type friendsRequest struct {
	Phones []string `json:"phones"`
}

type friendsResponse struct {
	FriendsPhones []string `json:"friendsPhones"`
}

type walletRequest struct {
	WalletAddress string `json:"walletAddress"`
}

type historyResponse struct {
	Mints []domain.MintRecord `json:"mints"`
}

func (a *api) session(w http.ResponseWriter, r *http.Request) {
	var profile domain.Profile
	if err := decodeOptional(w, r, &profile); err != nil {
		a.fail(w, r, err)
		return
	}

	state, err := a.deps.Users.Session(r.Context(), r.PathValue("id"), profile)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *api) getOrCreateUser(w http.ResponseWriter, r *http.Request) {
	var profile domain.Profile
	if err := decodeOptional(w, r, &profile); err != nil {
		a.fail(w, r, err)
		return
	}

	u, created, err := a.deps.Users.GetOrCreate(r.Context(), r.PathValue("id"), profile)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, u)
}

func (a *api) friends(w http.ResponseWriter, r *http.Request) {
	phones, err := a.deps.Users.FriendPhones(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, friendsResponse{FriendsPhones: phones})
}

func (a *api) saveFriends(w http.ResponseWriter, r *http.Request) {
	var req friendsRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	phones, err := a.deps.Users.SaveFriendPhones(r.Context(), r.PathValue("id"), req.Phones)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, friendsResponse{FriendsPhones: phones})
}

func (a *api) completeTutorial(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Users.CompleteTutorial(r.Context(), r.PathValue("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) saveWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	if err := a.deps.Users.SaveWalletAddress(r.Context(), r.PathValue("id"), req.WalletAddress); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) recordMint(w http.ResponseWriter, r *http.Request) {
	var in domain.MintInput
	if err := decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}

	record, err := a.deps.Users.RecordMint(r.Context(), r.PathValue("id"), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (a *api) history(w http.ResponseWriter, r *http.Request) {
	records, err := a.deps.Users.History(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Mints: records})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	middleware.WriteJSON(w, status, v)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

// decodeOptional accepts an empty body and leaves dst untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	if r.Body == nil {
		r.Body = http.NoBody
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	case errors.Is(err, io.EOF):
		return apperrors.NewValidationError("request body is required")
	default:
		return apperrors.NewValidationError("invalid JSON body: " + err.Error())
	}
}
