package ranked

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mcdev12/lastround/go/internal/results"
)

const (
	ServiceName             = "lastround.ranked.v1.RankedService"
	GetRatingProcedure      = "/" + ServiceName + "/GetRating"
	GetQueueStatusProcedure = "/" + ServiceName + "/GetQueueStatus"
)

type GetRatingRequest struct {
	UserID string `json:"userId"`
}

type GetRatingResponse struct {
	Rating results.Rating `json:"rating"`
}

type GetQueueStatusRequest struct{}

type GetQueueStatusResponse struct {
	Queued  int          `json:"queued"`
	Entries []QueueEntry `json:"entries"`
}

// JSONCodec serializes plain Go structs for the ranked API.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// API serves ranked read queries over Connect.
type API struct {
	svc *Service
}

func NewAPI(svc *Service) *API {
	return &API{svc: svc}
}

func (a *API) GetRating(ctx context.Context, req *connect.Request[GetRatingRequest]) (*connect.Response[GetRatingResponse], error) {
	id := strings.TrimSpace(req.Msg.UserID)
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("userId is required"))
	}
	r, err := a.svc.Rating(ctx, id)
	if errors.Is(err, results.ErrNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&GetRatingResponse{Rating: r}), nil
}

func (a *API) GetQueueStatus(context.Context, *connect.Request[GetQueueStatusRequest]) (*connect.Response[GetQueueStatusResponse], error) {
	entries := a.svc.Snapshot()
	return connect.NewResponse(&GetQueueStatusResponse{Queued: len(entries), Entries: entries}), nil
}

// NewHandler mounts the API. It returns the path prefix to register the
// handler under.
func NewHandler(api *API, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
	getRating := connect.NewUnaryHandler(GetRatingProcedure, api.GetRating, opts...)
	getQueueStatus := connect.NewUnaryHandler(GetQueueStatusProcedure, api.GetQueueStatus, opts...)
	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GetRatingProcedure:
			getRating.ServeHTTP(w, r)
		case GetQueueStatusProcedure:
			getQueueStatus.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
