package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/olehkaliuzhnyi/sword-dapp/internal/controller"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/tx"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/ui"
	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

type indexView struct {
	Slots      map[string]ui.SlotState
	Categories []models.Category
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	view := indexView{Slots: make(map[string]ui.SlotState), Categories: models.Categories}
	for slot, st := range s.page.Snapshot() {
		view.Slots[string(slot)] = st
	}
	if err := indexTmpl.Execute(w, view); err != nil {
		s.logger.Error("render index", "error", err)
	}
}

type stateResponse struct {
	controller.Snapshot
	Slots     map[ui.Slot]ui.SlotState     `json:"slots"`
	InitError string                       `json:"init_error,omitempty"`
	InFlight  []*models.PendingTransaction `json:"in_flight,omitempty"`
}

// inFlightLister is implemented by trackers that keep pending records.
type inFlightLister interface {
	InFlight() ([]*models.PendingTransaction, error)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ctrl, initErr := s.ctrl, s.initErr
	s.mu.RUnlock()

	resp := stateResponse{Slots: s.page.Snapshot()}
	if ctrl != nil {
		resp.Snapshot = ctrl.Snapshot()
	}
	if initErr != nil {
		resp.InitError = initErr.Error()
	}
	if l, ok := s.opts.Tracker.(inFlightLister); ok {
		pending, err := l.InFlight()
		if err != nil {
			s.logger.Warn("list in-flight transactions", "error", err)
		}
		resp.InFlight = pending
	}
	writeJSON(w, http.StatusOK, resp)
}

type countsResponse struct {
	Counts  map[string]string `json:"counts"`
	Summary string            `json:"summary"`
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.current()
	if err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}
	counts, err := ctrl.QueryCounters(r.Context())
	if err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}
	resp := countsResponse{Counts: make(map[string]string, len(models.Categories)), Summary: counts.Summary()}
	for _, cat := range models.Categories {
		resp.Counts[strings.ToLower(cat.String())] = counts.Get(cat).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.current()
	if err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}
	if err := ctrl.ConnectWallet(r.Context()); err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.current()
	if err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}
	if err := ctrl.DisconnectWallet(r.Context()); err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

type incrementResponse struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber string `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used"`
}

type revertResponse struct {
	Error  string `json:"error"`
	TxHash string `json:"tx_hash,omitempty"`
	Reason string `json:"reason"`
}

func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(mux.Vars(r)["color"])
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ctrl, err := s.current()
	if err != nil {
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}

	s.page.SetVisible(ui.SlotLastError, false)
	receipt, err := ctrl.SubmitIncrement(r.Context(), category)
	if err != nil {
		var rev *tx.RevertError
		if errors.As(err, &rev) {
			resp := revertResponse{Error: err.Error(), Reason: rev.Reason}
			if rev.TxHash != (common.Hash{}) {
				resp.TxHash = rev.TxHash.Hex()
			}
			writeJSON(w, http.StatusUnprocessableEntity, resp)
			return
		}
		writeErrorResponse(w, statusFor(err), err.Error())
		return
	}

	resp := incrementResponse{TxHash: receipt.TxHash.Hex(), GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		resp.BlockNumber = receipt.BlockNumber.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, controller.ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, controller.ErrNotBound),
		errors.Is(err, controller.ErrNoActiveAccount),
		errors.Is(err, controller.ErrNetworkMismatch):
		return http.StatusConflict
	case errors.Is(err, controller.ErrProviderUnavailable),
		errors.Is(err, controller.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, controller.ErrTransactionReverted):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
