package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/jgivc/imgfetch/internal/common"
	"github.com/jgivc/imgfetch/internal/entity"
	"github.com/jgivc/imgfetch/internal/util"
)

type BatchService interface {
	Run(ctx context.Context, req *entity.DownloadRequest) (*entity.BatchResult, error)
}

type QuotaService interface {
	Check(ctx context.Context, identity entity.Identity, requested int) (entity.QuotaStatus, error)
}

// IdentityResolver stands in for the external auth layer: it turns an
// inbound request into an already-resolved identity descriptor.
type IdentityResolver interface {
	Resolve(r *http.Request) (entity.Identity, error)
}

type batchRequestDTO struct {
	URLs []string `json:"urls"`
}

type quotaErrorDTO struct {
	Error     string `json:"error"`
	Current   int64  `json:"current"`
	Remaining int64  `json:"remaining"`
	Limit     int64  `json:"limit"`
	Requested int    `json:"requested"`
}

type capErrorDTO struct {
	Error    string `json:"error"`
	Cap      int    `json:"cap"`
	Received int    `json:"received"`
}

func NewBatchHandler(srv BatchService, resolver IdentityResolver, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "BatchHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := resolver.Resolve(r)
		if err != nil {
			http.Error(w, "Cannot resolve identity", http.StatusBadRequest)

			return
		}

		var dto batchRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		result, err := srv.Run(r.Context(), &entity.DownloadRequest{
			URLs:     dto.URLs,
			Identity: identity,
		})
		if err != nil {
			writeBatchError(w, log, err)

			return
		}

		writeJSON(w, http.StatusOK, result, log)
	}
}

func NewQuotaHandler(srv QuotaService, resolver IdentityResolver, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "QuotaHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := resolver.Resolve(r)
		if err != nil {
			http.Error(w, "Cannot resolve identity", http.StatusBadRequest)

			return
		}

		status, err := srv.Check(r.Context(), identity, 0)
		if err != nil {
			log.Error("Cannot check quota", slog.Any("error", err))
			http.Error(w, "Cannot check quota", http.StatusInternalServerError)

			return
		}

		writeJSON(w, http.StatusOK, status, log)
	}
}

func writeBatchError(w http.ResponseWriter, log *slog.Logger, err error) {
	var qerr *common.QuotaExceededError
	if errors.As(err, &qerr) {
		writeJSON(w, http.StatusTooManyRequests, &quotaErrorDTO{
			Error:     "daily quota exceeded",
			Current:   qerr.Current,
			Remaining: qerr.Remaining,
			Limit:     qerr.Limit,
			Requested: qerr.Requested,
		}, log)

		return
	}

	var terr *common.RequestTooLargeError
	if errors.As(err, &terr) {
		writeJSON(w, http.StatusRequestEntityTooLarge, &capErrorDTO{
			Error:    "too many urls in request",
			Cap:      terr.Cap,
			Received: terr.Received,
		}, log)

		return
	}

	if errors.Is(err, common.ErrEmptyBatchError) {
		http.Error(w, "Batch contains no urls", http.StatusBadRequest)

		return
	}

	log.Error("Cannot process batch", slog.Any("error", err))
	http.Error(w, "Cannot process batch", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, body any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Cannot encode response", slog.Any("error", err))
	}
}

// HeaderIdentityResolver resolves identities from trusted headers set by the
// auth layer in front of the engine. Anonymous callers without a session key
// fall back to their remote address as the last-resort ledger key.
type HeaderIdentityResolver struct{}

const (
	HeaderUserID     = "X-User-ID"
	HeaderTier       = "X-Tier"
	HeaderSessionKey = "X-Session-Key"

	tierSubscribed = "subscribed"
)

func (HeaderIdentityResolver) Resolve(r *http.Request) (entity.Identity, error) {
	if userID := r.Header.Get(HeaderUserID); userID != "" {
		if r.Header.Get(HeaderTier) == tierSubscribed {
			return entity.NewSubscribed(userID), nil
		}

		return entity.NewRegistered(userID), nil
	}

	if sessionKey := r.Header.Get(HeaderSessionKey); sessionKey != "" {
		return entity.NewAnonymous(sessionKey), nil
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if host == "" {
		return entity.Identity{}, common.ErrUnknownIdentityError
	}

	// The ledger key must stay opaque; raw addresses are not stored.
	return entity.NewAnonymous("ip:" + util.GetIDFromString(host)), nil
}
