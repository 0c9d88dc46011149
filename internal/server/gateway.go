package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"BasketLedger/internal/core"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxCommandBytes = 1 << 20

// HTTPHandler returns the HTTP/JSON surface: the same service methods as the
// gRPC server, routed on a grpc-gateway mux, plus /healthz and /readyz.
func (s *GRPCServer) HTTPHandler() (http.Handler, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method, pattern, name string
		handle                func(r *http.Request, p map[string]string) (any, error)
	}{
		{http.MethodPost, "/v1/commands", "Execute", s.postCommand},
		{http.MethodGet, "/v1/baskets/{address}", "GetBasket", func(r *http.Request, p map[string]string) (any, error) {
			return s.http.GetBasket(r.Context(), &AddressRequest{Address: p["address"]})
		}},
		{http.MethodGet, "/v1/baskets/{basket}/holders/{holder}", "GetHolder", func(r *http.Request, p map[string]string) (any, error) {
			return s.http.GetHolder(r.Context(), &HolderRequest{Basket: p["basket"], Holder: p["holder"]})
		}},
		{http.MethodGet, "/v1/orders/{key}", "GetOrder", func(r *http.Request, p map[string]string) (any, error) {
			return s.http.GetOrder(r.Context(), &OrderRequest{Key: p["key"]})
		}},
		{http.MethodGet, "/v1/orders", "ListOrders", func(r *http.Request, _ map[string]string) (any, error) {
			q := r.URL.Query()
			return s.http.ListOrders(r.Context(), &ListOrdersRequest{
				State:   q.Get("state"),
				Basket:  q.Get("basket"),
				Creator: q.Get("creator"),
			})
		}},
		{http.MethodGet, "/v1/integrity", "VerifyIntegrity", func(r *http.Request, _ map[string]string) (any, error) {
			return s.http.VerifyIntegrity(r.Context(), &Empty{})
		}},
		{http.MethodGet, "/v1/accounts/{address}/balances", "ProjectedBalances", func(r *http.Request, p map[string]string) (any, error) {
			return s.http.ProjectedBalances(r.Context(), &AddressRequest{Address: p["address"]})
		}},
		{http.MethodGet, "/v1/journal", "JournalHistory", func(r *http.Request, _ map[string]string) (any, error) {
			q := r.URL.Query()
			limit := 0
			if raw := q.Get("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "limit %q", raw)
				}
				limit = n
			}
			return s.http.JournalHistory(r.Context(), &JournalRequest{Account: q.Get("account"), Limit: limit})
		}},
	}

	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, s.route(rt.name, rt.handle)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	httpMux.Handle("/", mux)
	return httpMux, nil
}

func (s *GRPCServer) route(name string, handle func(*http.Request, map[string]string) (any, error)) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, p map[string]string) {
		start := time.Now()
		resp, err := handle(r, p)
		observe(s.metrics, name, start, err)
		if err != nil {
			st := status.Convert(err)
			writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), map[string]string{
				"code":    st.Code().String(),
				"message": st.Message(),
			})
			return
		}
		code := http.StatusOK
		if res, ok := resp.(*core.Result); ok {
			code = resultStatus(res)
		}
		writeJSON(w, code, resp)
	}
}

func (s *GRPCServer) postCommand(r *http.Request, _ map[string]string) (any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes+1))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "read body: %v", err)
	}
	if len(body) > maxCommandBytes {
		return nil, status.Error(codes.InvalidArgument, "command too large")
	}
	raw := json.RawMessage(body)
	return s.http.Execute(r.Context(), &raw)
}

// resultStatus maps a sequenced outcome to an HTTP status: 200 applied,
// 409 duplicate, 422 rejected.
func resultStatus(res *core.Result) int {
	switch {
	case res.Duplicate:
		return http.StatusConflict
	case res.Rejection != "":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
